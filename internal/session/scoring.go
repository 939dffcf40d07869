package session

import (
	"math"

	"github.com/gosight/formsight/internal/config"
	"github.com/gosight/formsight/internal/model"
)

type eventTally struct {
	types        map[model.EventType]int
	submits      int
	fieldChanges int
	visibility   int
}

func tallyEvents(events []model.BehaviorEvent) eventTally {
	t := eventTally{types: make(map[model.EventType]int, len(model.KnownEventTypes))}
	for i := range events {
		et := events[i].EventType
		t.types[et]++
		switch et {
		case model.EventFormSubmit:
			t.submits++
		case model.EventFieldChange:
			t.fieldChanges++
		case model.EventVisibilityChange:
			t.visibility++
		}
	}
	return t
}

// Rescore recomputes the derived metrics and flags of st from its events,
// adaptations and behavioral context. Returning-user status is left as is.
func Rescore(st *model.SessionState, cfg config.ScoringConfig) {
	t := tallyEvents(st.Events)

	st.Metrics.TotalEvents = len(st.Events)
	st.Metrics.TotalAdaptations = len(st.Adaptations)
	st.Metrics.SessionDuration = st.Context.Session.LastActivity - st.Context.Session.StartTime
	if st.Metrics.SessionDuration < 0 {
		st.Metrics.SessionDuration = 0
	}

	st.Metrics.EngagementScore = engagementScore(st, t, cfg.Engagement)
	st.Flags.NeedsAssistance = needsAssistance(st, cfg.Assistance)
	st.Flags.RiskOfAbandonment = riskOfAbandonment(st, t, cfg.Abandonment)
	st.Metrics.ConversionLikelihood = conversionLikelihood(st, t, cfg.Conversion)
	st.Flags.IsHighValueSession = st.Metrics.EngagementScore > cfg.HighValue
}

func durationMinutes(st *model.SessionState) float64 {
	return float64(st.Metrics.SessionDuration) / 60000
}

func engagementScore(st *model.SessionState, t eventTally, ec config.EngagementConfig) float64 {
	if len(st.Events) == 0 {
		return 0
	}

	score := math.Min(float64(len(t.types))/ec.DiversityDivisor, ec.DiversityCap)

	minutes := durationMinutes(st)
	switch {
	case minutes >= ec.DurationMinMinutes && minutes <= ec.DurationMaxMinutes:
		score += ec.DurationWeight
	case minutes > ec.DurationMaxMinutes:
		score += math.Max(ec.DurationFloor, ec.DurationWeight-(minutes-ec.DurationMaxMinutes)*ec.DurationDecayPerMinute)
	}

	if minutes > 0 {
		rate := float64(len(st.Events)) / minutes
		if rate >= ec.ActivityMinPerMinute && rate <= ec.ActivityMaxPerMinute {
			score += ec.ActivityWeight
		}
	}
	if t.submits > 0 {
		score += ec.SubmitWeight
	}
	if t.fieldChanges > ec.FieldChangeThreshold {
		score += ec.FieldChangeWeight
	}
	return clamp01(score)
}

func conversionLikelihood(st *model.SessionState, t eventTally, cc config.ConversionConfig) float64 {
	b := st.Context.Behavioral
	score := cc.Base
	if st.Flags.IsReturningUser {
		score += cc.ReturningBonus
	}
	if t.submits > 0 {
		score += cc.SubmitBonus
	}
	if len(st.Adaptations) > 0 {
		score += cc.AdaptationBonus
	}
	if b.ConfidenceLevel > cc.ConfidenceThreshold {
		score += cc.ConfidenceBonus
	}
	if st.Flags.RiskOfAbandonment {
		score -= cc.AbandonmentPenalty
	}
	if b.ErrorRate > cc.ErrorRateThreshold {
		score -= cc.ErrorPenalty
	}
	if durationMinutes(st) > cc.LongSessionMinutes {
		score -= cc.LongSessionPenalty
	}
	return clamp01(score)
}

func needsAssistance(st *model.SessionState, ac config.AssistanceConfig) bool {
	b := st.Context.Behavioral
	return b.ErrorRate > ac.ErrorRate ||
		b.Hesitation > ac.HesitationMs ||
		st.Context.Session.FailedSubmissions > ac.FailedSubmissions ||
		b.TypingConfidence < ac.TypingConfidence
}

func riskOfAbandonment(st *model.SessionState, t eventTally, ac config.AbandonmentConfig) bool {
	events := st.Metrics.TotalEvents
	return (durationMinutes(st) > ac.LongSessionMinutes && events < ac.LongSessionMinEvents) ||
		(events < ac.SparseEvents && st.Metrics.SessionDuration > ac.SparseDurationMs) ||
		t.visibility > ac.MaxVisibilityChanges ||
		st.Context.Behavioral.RecentEngagement < ac.MinRecentEngagement
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
