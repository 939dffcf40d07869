package analyzer

import (
	"github.com/gosight/formsight/internal/model"
)

// Insight types
const (
	InsightCapability = "capability"
	InsightLoyalty    = "loyalty"
	InsightStruggle   = "struggle"
)

type recommendationRule struct {
	when func(st *model.SessionState) bool
	rec  model.Recommendation
}

func (a *Analyzer) recommendationRules() []recommendationRule {
	rc := a.cfg.Recommendation
	return []recommendationRule{
		{
			when: func(st *model.SessionState) bool { return st.Flags.NeedsAssistance },
			rec: model.Recommendation{
				Type:       model.AdaptationErrorPrevention,
				Priority:   model.PriorityHigh,
				Confidence: 0.8,
				Reason:     "visitor shows signs of difficulty completing fields",
			},
		},
		{
			when: func(st *model.SessionState) bool {
				return st.Context.Device.IsMobile() && st.Context.Behavioral.Precision < rc.MobilePrecision
			},
			rec: model.Recommendation{
				Type:       model.AdaptationContextSwitching,
				Priority:   model.PriorityMedium,
				Confidence: 0.7,
				Reason:     "imprecise taps on a mobile device",
			},
		},
		{
			when: func(st *model.SessionState) bool {
				return st.Context.Behavioral.TypingSpeed > rc.FastTyping && !st.Flags.NeedsAssistance
			},
			rec: model.Recommendation{
				Type:       model.AdaptationProgressiveDisclosure,
				Priority:   model.PriorityLow,
				Confidence: 0.6,
				Reason:     "fast, accurate typist can handle a streamlined form",
			},
		},
		{
			when: func(st *model.SessionState) bool { return st.Flags.RiskOfAbandonment },
			rec: model.Recommendation{
				Type:       model.AdaptationCompletionGuidance,
				Priority:   model.PriorityHigh,
				Confidence: 0.65,
				Reason:     "session is at risk of abandonment",
			},
		},
	}
}

// GenerateRecommendations evaluates the rules in fixed order and returns the
// triggered recommendations, at most one per adaptation type. It does not
// modify st.
func (a *Analyzer) GenerateRecommendations(st *model.SessionState) []model.Recommendation {
	out := make([]model.Recommendation, 0, 4)
	seen := make(map[model.AdaptationType]bool, 4)
	for _, r := range a.recommendationRules() {
		if !r.when(st) || seen[r.rec.Type] {
			continue
		}
		seen[r.rec.Type] = true
		out = append(out, r.rec)
	}
	return out
}

// ContextualInsights describes notable traits of the session
func (a *Analyzer) ContextualInsights(st *model.SessionState) []model.Insight {
	out := make([]model.Insight, 0, 3)
	if st.Context.Behavioral.TypingSpeed > a.cfg.Recommendation.FastTyping {
		out = append(out, model.Insight{
			Type:       InsightCapability,
			Message:    "visitor types quickly and can handle denser forms",
			Confidence: 0.9,
			Actionable: true,
		})
	}
	if st.Flags.IsReturningUser {
		out = append(out, model.Insight{
			Type:       InsightLoyalty,
			Message:    "returning visitor",
			Confidence: 0.8,
		})
	}
	if st.Flags.NeedsAssistance {
		out = append(out, model.Insight{
			Type:       InsightStruggle,
			Message:    "visitor is struggling and may need assistance",
			Confidence: 0.85,
			Actionable: true,
		})
	}
	return out
}
