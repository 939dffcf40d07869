package session

import (
	"fmt"

	"github.com/gosight/formsight/internal/analyzer"
	"github.com/gosight/formsight/internal/config"
	"github.com/gosight/formsight/internal/model"
)

// Risk factor types
const (
	RiskHighErrorRate       = "high_error_rate"
	RiskProlongedHesitation = "prolonged_hesitation"
	RiskSubmissionFailures  = "repeated_submission_failures"
	RiskLowEngagement       = "low_engagement"
	RiskTabSwitching        = "frequent_tab_switching"
	RiskAbandonment         = "abandonment_risk"
)

// Opportunity types
const (
	OpportunityHighEngagement  = "high_engagement"
	OpportunityReturningUser   = "returning_user"
	OpportunityFastTypist      = "fast_typist"
	OpportunityConversionReady = "conversion_ready"
	OpportunityMobile          = "mobile_optimization"
)

// RiskFactors evaluates the risk rules in order against st
func RiskFactors(st *model.SessionState, cfg config.ScoringConfig) []model.RiskFactor {
	b := st.Context.Behavioral
	sc := st.Context.Session
	out := make([]model.RiskFactor, 0)

	if b.ErrorRate > cfg.Assistance.ErrorRate {
		out = append(out, model.RiskFactor{
			Type:     RiskHighErrorRate,
			Severity: model.SeverityHigh,
			Message:  fmt.Sprintf("error rate %.0f%% is above %.0f%%", b.ErrorRate*100, cfg.Assistance.ErrorRate*100),
		})
	}
	if b.Hesitation > cfg.Assistance.HesitationMs {
		out = append(out, model.RiskFactor{
			Type:     RiskProlongedHesitation,
			Severity: model.SeverityMedium,
			Message:  fmt.Sprintf("average hesitation of %.0fms before input", b.Hesitation),
		})
	}
	if sc.FailedSubmissions > cfg.Assistance.FailedSubmissions {
		out = append(out, model.RiskFactor{
			Type:     RiskSubmissionFailures,
			Severity: model.SeverityHigh,
			Message:  fmt.Sprintf("%d failed submissions", sc.FailedSubmissions),
		})
	}
	if st.Metrics.TotalEvents > 0 && st.Metrics.EngagementScore < cfg.Abandonment.MinRecentEngagement {
		out = append(out, model.RiskFactor{
			Type:     RiskLowEngagement,
			Severity: model.SeverityMedium,
			Message:  "little interaction with the form",
		})
	}
	if sc.VisibilityChanges > cfg.Abandonment.MaxVisibilityChanges {
		out = append(out, model.RiskFactor{
			Type:     RiskTabSwitching,
			Severity: model.SeverityMedium,
			Message:  fmt.Sprintf("left the page %d times", sc.VisibilityChanges),
		})
	}
	if st.Flags.RiskOfAbandonment {
		out = append(out, model.RiskFactor{
			Type:     RiskAbandonment,
			Severity: model.SeverityHigh,
			Message:  "session is likely to be abandoned",
		})
	}
	return out
}

// Opportunities evaluates the opportunity rules in order against st
func Opportunities(st *model.SessionState, cfg config.ScoringConfig) []model.Opportunity {
	out := make([]model.Opportunity, 0)

	if st.Flags.IsHighValueSession {
		out = append(out, model.Opportunity{
			Type:    OpportunityHighEngagement,
			Message: "highly engaged session",
		})
	}
	if st.Flags.IsReturningUser {
		out = append(out, model.Opportunity{
			Type:    OpportunityReturningUser,
			Message: "returning visitor, preferences can be reused",
		})
	}
	if st.Context.Behavioral.TypingSpeed > cfg.Recommendation.FastTyping {
		out = append(out, model.Opportunity{
			Type:       OpportunityFastTypist,
			Message:    "fast typist could skip optional steps",
			Suggestion: model.AdaptationProgressiveDisclosure,
		})
	}
	if st.Metrics.ConversionLikelihood > cfg.HighValue {
		out = append(out, model.Opportunity{
			Type:       OpportunityConversionReady,
			Message:    "likely to convert, guide to completion",
			Suggestion: model.AdaptationCompletionGuidance,
		})
	}
	if st.Context.Device.IsMobile() {
		out = append(out, model.Opportunity{
			Type:       OpportunityMobile,
			Message:    "mobile visitor",
			Suggestion: model.AdaptationContextSwitching,
		})
	}
	return out
}

func buildEnhancedProfile(st *model.SessionState, a *analyzer.Analyzer) model.EnhancedProfile {
	cfg := a.Config()
	p := model.EnhancedProfile{
		SessionID:     st.SessionID,
		UserID:        st.UserID,
		Metrics:       st.Metrics,
		Behavioral:    st.Context.Behavioral,
		Device:        st.Context.Device,
		Insights:      a.ContextualInsights(st),
		Patterns:      a.BehavioralPatterns(st),
		RiskFactors:   RiskFactors(st, cfg),
		Opportunities: Opportunities(st, cfg),
		Flags:         st.Flags,
	}
	if st.Profile != nil {
		profile := *st.Profile
		p.Profile = &profile
	}
	if p.Patterns == nil {
		p.Patterns = []model.Pattern{}
	}
	return p
}
