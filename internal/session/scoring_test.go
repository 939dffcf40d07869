package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gosight/formsight/internal/config"
	"github.com/gosight/formsight/internal/model"
)

func stateWith(durationMs int64, types ...model.EventType) *model.SessionState {
	st := &model.SessionState{SessionID: "s1"}
	for i, t := range types {
		st.Events = append(st.Events, model.BehaviorEvent{SessionID: "s1", FormID: "f", EventType: t, Timestamp: int64(1 + i)})
	}
	st.Context.Session.StartTime = 1
	st.Context.Session.LastActivity = 1 + durationMs
	st.Context.Behavioral = model.BehavioralContext{
		TypingSpeed: 0.5, ErrorRate: 0.1, ConfidenceLevel: 0.5, Hesitation: 2000,
		Precision: 0.5, TypingConfidence: 0.5, RecentEngagement: 0.5,
	}
	return st
}

func TestEngagementScoreDuration(t *testing.T) {
	cfg := config.DefaultScoring()
	// one event type: diversity 1/6
	diversity := 1.0 / 6

	tests := []struct {
		name     string
		minutes  float64
		events   int
		expected float64
	}{
		{name: "under two minutes", minutes: 1, events: 1, expected: diversity},
		{name: "inside the window", minutes: 3, events: 1, expected: diversity + 0.3},
		{name: "seven minutes decays", minutes: 7, events: 1, expected: diversity + 0.2},
		{name: "long sessions keep the floor", minutes: 30, events: 1, expected: diversity + 0.1},
		{name: "active pace", minutes: 1, events: 10, expected: diversity + 0.2},
		{name: "too busy for the pace bonus", minutes: 1, events: 30, expected: diversity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			types := make([]model.EventType, tt.events)
			for i := range types {
				types[i] = model.EventMouseMove
			}
			st := stateWith(int64(tt.minutes*60000), types...)
			Rescore(st, cfg)
			assert.InDelta(t, tt.expected, st.Metrics.EngagementScore, 1e-9)
		})
	}
}

func TestEngagementScoreCapsDiversity(t *testing.T) {
	st := stateWith(0, model.KnownEventTypes...)
	Rescore(st, config.DefaultScoring())
	// diversity 0.3 + submit 0.2, no duration or pace bonus at zero duration
	assert.InDelta(t, 0.5, st.Metrics.EngagementScore, 1e-9)
}

func TestConversionLikelihood(t *testing.T) {
	cfg := config.DefaultScoring()

	st := stateWith(0, model.EventPageLoad)
	Rescore(st, cfg)
	assert.InDelta(t, 0.5, st.Metrics.ConversionLikelihood, 1e-9)

	st.Flags.IsReturningUser = true
	st.Context.Behavioral.ConfidenceLevel = 0.9
	st.Events = append(st.Events, model.BehaviorEvent{SessionID: "s1", FormID: "f", EventType: model.EventFormSubmit, Timestamp: 2})
	st.Adaptations = append(st.Adaptations, model.AdaptationRecord{})
	Rescore(st, cfg)
	// capped at 1
	assert.Equal(t, 1.0, st.Metrics.ConversionLikelihood)

	worst := stateWith(11*60000, model.EventPageLoad)
	worst.Context.Behavioral.ErrorRate = 0.5
	worst.Context.Behavioral.RecentEngagement = 0.1
	Rescore(worst, cfg)
	// 0.5 - 0.2 - 0.15 - 0.1
	assert.InDelta(t, 0.05, worst.Metrics.ConversionLikelihood, 1e-9)
	assert.True(t, worst.Flags.RiskOfAbandonment)
	assert.True(t, worst.Flags.NeedsAssistance)
}

func TestNeedsAssistance(t *testing.T) {
	cfg := config.DefaultScoring()
	tests := []struct {
		name   string
		mutate func(st *model.SessionState)
		want   bool
	}{
		{name: "defaults", mutate: func(st *model.SessionState) {}, want: false},
		{name: "error rate", mutate: func(st *model.SessionState) { st.Context.Behavioral.ErrorRate = 0.26 }, want: true},
		{name: "hesitation", mutate: func(st *model.SessionState) { st.Context.Behavioral.Hesitation = 5001 }, want: true},
		{name: "one failed submission", mutate: func(st *model.SessionState) { st.Context.Session.FailedSubmissions = 1 }, want: false},
		{name: "two failed submissions", mutate: func(st *model.SessionState) { st.Context.Session.FailedSubmissions = 2 }, want: true},
		{name: "low typing confidence", mutate: func(st *model.SessionState) { st.Context.Behavioral.TypingConfidence = 0.2 }, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := stateWith(1000, model.EventPageLoad, model.EventFocus, model.EventBlur)
			tt.mutate(st)
			Rescore(st, cfg)
			assert.Equal(t, tt.want, st.Flags.NeedsAssistance)
		})
	}
}

func TestRiskOfAbandonment(t *testing.T) {
	cfg := config.DefaultScoring()
	three := []model.EventType{model.EventPageLoad, model.EventFocus, model.EventBlur}

	tests := []struct {
		name string
		st   *model.SessionState
		want bool
	}{
		{name: "healthy", st: stateWith(60000, three...), want: false},
		{name: "long and quiet", st: stateWith(11*60000, three...), want: true},
		{name: "sparse over thirty seconds", st: stateWith(31000, model.EventPageLoad, model.EventFocus), want: true},
		{name: "sparse but short", st: stateWith(20000, model.EventPageLoad, model.EventFocus), want: false},
		{name: "tab switching", st: stateWith(1000, model.EventVisibilityChange, model.EventVisibilityChange, model.EventVisibilityChange, model.EventVisibilityChange), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Rescore(tt.st, cfg)
			assert.Equal(t, tt.want, tt.st.Flags.RiskOfAbandonment)
		})
	}

	low := stateWith(1000, three...)
	low.Context.Behavioral.RecentEngagement = 0.2
	Rescore(low, cfg)
	assert.True(t, low.Flags.RiskOfAbandonment)
}
