package analyzer

import (
	"math"

	"github.com/gosight/formsight/internal/model"
)

// Pattern types
const (
	PatternTypingRhythm = "typing_rhythm"
	PatternRapidClicks  = "rapid_clicks"
	PatternFieldRevisit = "field_revisit"
	PatternNavigation   = "navigation"
)

// Typing rhythm labels by mean inter-key interval
const (
	RhythmVeryFast = "very fast"
	RhythmFast     = "fast"
	RhythmModerate = "moderate"
	RhythmSlow     = "slow"
)

// BehavioralPatterns extracts recurring behavior from the event history
func (a *Analyzer) BehavioralPatterns(st *model.SessionState) []model.Pattern {
	var out []model.Pattern
	if p, ok := a.typingRhythm(st.Events); ok {
		out = append(out, p)
	}
	if p, ok := a.rapidClicks(st.Events); ok {
		out = append(out, p)
	}
	if p, ok := a.fieldRevisits(st.Events); ok {
		out = append(out, p)
	}
	if p, ok := a.navigationPattern(st.Events); ok {
		out = append(out, p)
	}
	return out
}

// RhythmLabel names a mean inter-keystroke interval in milliseconds
func RhythmLabel(meanIntervalMs float64) string {
	switch {
	case meanIntervalMs < 100:
		return RhythmVeryFast
	case meanIntervalMs < 200:
		return RhythmFast
	case meanIntervalMs < 400:
		return RhythmModerate
	default:
		return RhythmSlow
	}
}

func (a *Analyzer) typingRhythm(events []model.BehaviorEvent) (model.Pattern, bool) {
	var keys int
	var prev, sum int64
	var intervals int
	for _, e := range events {
		if e.EventType != model.EventKeyPress {
			continue
		}
		if keys > 0 {
			if d := e.Timestamp - prev; d >= 0 {
				sum += d
				intervals++
			}
		}
		prev = e.Timestamp
		keys++
	}
	if keys < a.cfg.Analyzer.MinTypingSamples || intervals == 0 {
		return model.Pattern{}, false
	}

	mean := float64(sum) / float64(intervals)
	return model.Pattern{
		Type:        PatternTypingRhythm,
		Description: RhythmLabel(mean),
		Confidence:  math.Min(float64(keys)/50, 1),
		Details: map[string]interface{}{
			"key_presses":      keys,
			"mean_interval_ms": math.Round(mean),
		},
	}, true
}

type clickPoint struct {
	x, y float64
	ts   int64
}

// rapidClicks finds bursts of clicks inside a small radius and time window
func (a *Analyzer) rapidClicks(events []model.BehaviorEvent) (model.Pattern, bool) {
	ac := a.cfg.Analyzer
	radius := float64(ac.RapidClickRadiusPx)

	var window []clickPoint
	var bursts, burstClicks int
	for _, e := range events {
		if e.EventType != model.EventMouseClick {
			continue
		}
		x, okX := e.DataFloat("clickX")
		y, okY := e.DataFloat("clickY")
		if !okX || !okY || (x == 0 && y == 0) {
			continue
		}

		// Drop clicks outside the time window
		cutoff := e.Timestamp - ac.RapidClickWindowMs
		kept := window[:0]
		for _, c := range window {
			if c.ts > cutoff {
				kept = append(kept, c)
			}
		}
		window = append(kept, clickPoint{x: x, y: y, ts: e.Timestamp})

		if len(window) < ac.RapidClickMin {
			continue
		}
		cx, cy := center(window)
		if !allWithinRadius(window, cx, cy, radius) {
			continue
		}
		bursts++
		burstClicks += len(window)
		window = window[:0]
	}
	if bursts == 0 {
		return model.Pattern{}, false
	}

	return model.Pattern{
		Type:        PatternRapidClicks,
		Description: "repeated clicks on the same spot",
		Confidence:  math.Min(0.6+0.1*float64(bursts), 0.95),
		Details: map[string]interface{}{
			"bursts":         bursts,
			"click_count":    burstClicks,
			"time_window_ms": ac.RapidClickWindowMs,
			"radius_px":      ac.RapidClickRadiusPx,
		},
	}, true
}

func center(clicks []clickPoint) (float64, float64) {
	var sumX, sumY float64
	for _, c := range clicks {
		sumX += c.x
		sumY += c.y
	}
	n := float64(len(clicks))
	return sumX / n, sumY / n
}

func allWithinRadius(clicks []clickPoint, cx, cy, radius float64) bool {
	for _, c := range clicks {
		if math.Hypot(c.x-cx, c.y-cy) > radius {
			return false
		}
	}
	return true
}

// fieldRevisits detects A -> B -> A focus sequences where the visitor comes
// back to a field shortly after leaving it
func (a *Analyzer) fieldRevisits(events []model.BehaviorEvent) (model.Pattern, bool) {
	type visit struct {
		field string
		ts    int64
	}
	var history []visit
	var revisits int
	fields := map[string]int{}

	for _, e := range events {
		if e.EventType != model.EventFocus || e.FieldName == "" {
			continue
		}
		current := visit{field: e.FieldName, ts: e.Timestamp}
		if n := len(history); n >= 2 {
			last, secondLast := history[n-1], history[n-2]
			timeAway := current.ts - last.ts
			if current.field == secondLast.field && last.field != current.field &&
				timeAway > 0 && timeAway <= a.cfg.Analyzer.RevisitWindowMs {
				revisits++
				fields[current.field]++
			}
		}
		history = append(history, current)
		if len(history) > 20 {
			history = history[len(history)-20:]
		}
	}
	if revisits == 0 {
		return model.Pattern{}, false
	}

	return model.Pattern{
		Type:        PatternFieldRevisit,
		Description: "visitor returns to fields shortly after leaving them",
		Confidence:  math.Min(0.5+0.1*float64(revisits), 0.9),
		Details: map[string]interface{}{
			"revisits": revisits,
			"fields":   fields,
		},
	}, true
}

func (a *Analyzer) navigationPattern(events []model.BehaviorEvent) (model.Pattern, bool) {
	var focuses int
	var first, last int64
	for _, e := range events {
		if e.EventType != model.EventFocus {
			continue
		}
		if focuses == 0 {
			first = e.Timestamp
		}
		last = e.Timestamp
		focuses++
	}
	if focuses < a.classifier.MinFocusEvents() {
		return model.Pattern{}, false
	}
	return model.Pattern{
		Type:        PatternNavigation,
		Description: a.classifier.NavigationStyle(events),
		Confidence:  a.classifier.Confidence(focuses, last-first),
		Details: map[string]interface{}{
			"focus_events": focuses,
		},
	}, true
}
