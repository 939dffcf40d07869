// Package analyzer turns raw behavior events into rolling behavioral
// estimates and derives recommendations, insights and patterns from a
// session state. The Analyzer holds no per-session state of its own.
package analyzer

import (
	"math"

	"github.com/gosight/formsight/internal/classifier"
	"github.com/gosight/formsight/internal/config"
	"github.com/gosight/formsight/internal/model"
)

// Analyzer applies the scoring configuration to session states
type Analyzer struct {
	cfg        config.ScoringConfig
	classifier *classifier.Classifier
}

// New creates an analyzer
func New(cfg config.ScoringConfig) *Analyzer {
	return &Analyzer{cfg: cfg, classifier: classifier.New(cfg.Classifier)}
}

// Config returns the scoring configuration in use
func (a *Analyzer) Config() config.ScoringConfig {
	return a.cfg
}

// AnalyzeEvent folds one accepted event into the behavioral and session
// context of st. The event must already be appended to st.Events and the
// session timestamps bumped.
func (a *Analyzer) AnalyzeEvent(e model.BehaviorEvent, st *model.SessionState) {
	b := &st.Context.Behavioral
	sc := &st.Context.Session
	ac := a.cfg.Analyzer

	if sc.FormID == "" {
		sc.FormID = e.FormID
	}
	if sc.URL == "" && e.URL != "" {
		sc.URL = e.URL
	}

	switch e.EventType {
	case model.EventMouseMove:
		a.bumpEngagement(b)

	case model.EventMouseClick:
		a.bumpEngagement(b)
		if sample, ok := clickPrecision(e); ok {
			b.Precision = ema(b.Precision, sample, ac.Smoothing)
		}

	case model.EventScroll:
		a.bumpEngagement(b)
		b.Scrolls++
		minutes := math.Max(float64(st.Metrics.SessionDuration)/60000, 1)
		b.ScrollFrequency = math.Min(float64(b.Scrolls)/minutes/ac.ScrollsPerMinuteMax, 1)

	case model.EventKeyPress:
		b.KeyPresses++
		if classifier.IsCorrectionKey(e.DataString("key")) {
			b.Corrections++
		}
		if b.LastKeyPressAt > 0 {
			interval := e.Timestamp - b.LastKeyPressAt
			if interval > 0 && interval <= ac.TypingPauseMs {
				sample := math.Min(ac.TypingReferenceMs/float64(interval), 1)
				b.TypingSpeed = ema(b.TypingSpeed, sample, ac.Smoothing)
			}
		}
		b.LastKeyPressAt = e.Timestamp
		a.endHesitation(e, b)
		a.refreshTyping(b)

	case model.EventFieldChange:
		b.FieldChanges++
		if valid, ok := e.DataBool("valid"); ok && !valid {
			b.InvalidChanges++
		}
		if e.FieldName != "" {
			sc.FieldsTouched = appendUnique(sc.FieldsTouched, e.FieldName)
		}
		a.endHesitation(e, b)
		a.refreshTyping(b)

	case model.EventFocus:
		sc.FocusCount++
		sc.CurrentField = e.FieldName
		b.LastFocusAt = e.Timestamp
		b.AwaitingInput = true

	case model.EventBlur:
		if sc.CurrentField == e.FieldName {
			sc.CurrentField = ""
		}
		b.AwaitingInput = false

	case model.EventHelpRequest:
		b.HelpSeeking = ema(b.HelpSeeking, 1, ac.Smoothing)

	case model.EventVisibilityChange:
		sc.VisibilityChanges++

	case model.EventFormSubmit:
		sc.Submissions++
		if ok, present := e.DataBool("success"); present && !ok {
			sc.FailedSubmissions++
		}
	}

	b.ConfidenceLevel = clamp01((b.TypingConfidence + b.Precision + (1 - math.Min(b.Hesitation/ac.HesitationScaleMs, 1))) / 3)
}

// bumpEngagement raises recentEngagement. It never decays.
func (a *Analyzer) bumpEngagement(b *model.BehavioralContext) {
	b.RecentEngagement = math.Min(b.RecentEngagement+a.cfg.Analyzer.EngagementStep, 1)
}

// endHesitation records the delay between focusing a field and the first
// input into it
func (a *Analyzer) endHesitation(e model.BehaviorEvent, b *model.BehavioralContext) {
	if !b.AwaitingInput {
		return
	}
	b.AwaitingInput = false
	if b.LastFocusAt <= 0 || e.Timestamp < b.LastFocusAt {
		return
	}
	b.Hesitation = ema(b.Hesitation, float64(e.Timestamp-b.LastFocusAt), a.cfg.Analyzer.Smoothing)
}

// refreshTyping recomputes the error rate, smoothed toward the prior with
// PriorWeight pseudo-observations, and the typing confidence
func (a *Analyzer) refreshTyping(b *model.BehavioralContext) {
	w := a.cfg.Analyzer.PriorWeight
	errs := float64(b.Corrections + b.InvalidChanges)
	attempts := float64(b.KeyPresses + b.FieldChanges)
	if attempts+w > 0 {
		b.ErrorRate = clamp01((errs + b.PriorErrorRate*w) / (attempts + w))
	}
	b.TypingConfidence = clamp01(0.5*b.TypingSpeed + 0.5*(1-b.ErrorRate))
}

// clickPrecision scores how close a click landed to the center of its
// target. Events carry either the click and target geometry or a plain
// hitTarget flag.
func clickPrecision(e model.BehaviorEvent) (float64, bool) {
	cx, okX := e.DataFloat("clickX")
	cy, okY := e.DataFloat("clickY")
	tx, okTX := e.DataFloat("targetX")
	ty, okTY := e.DataFloat("targetY")
	tw, okW := e.DataFloat("targetWidth")
	th, okH := e.DataFloat("targetHeight")
	if okX && okY && okTX && okTY && okW && okH && tw > 0 && th > 0 {
		dx := cx - (tx + tw/2)
		dy := cy - (ty + th/2)
		radius := math.Hypot(tw, th) / 2
		return 1 - math.Min(math.Hypot(dx, dy)/radius, 1), true
	}
	if hit, ok := e.DataBool("hitTarget"); ok {
		if hit {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func ema(prev, sample, alpha float64) float64 {
	return prev + alpha*(sample-prev)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
