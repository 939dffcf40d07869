package config

// ScoringConfig collects every threshold and weight used by the session
// scoring model and the context analyzer.
type ScoringConfig struct {
	Engagement     EngagementConfig     `yaml:"engagement"`
	Conversion     ConversionConfig     `yaml:"conversion"`
	Assistance     AssistanceConfig     `yaml:"assistance"`
	Abandonment    AbandonmentConfig    `yaml:"abandonment"`
	HighValue      float64              `yaml:"high_value_engagement"`
	Analyzer       AnalyzerConfig       `yaml:"analyzer"`
	Recommendation RecommendationConfig `yaml:"recommendation"`
	Priors         BehavioralPriors     `yaml:"priors"`
	Classifier     ClassifierConfig     `yaml:"classifier"`
}

type EngagementConfig struct {
	DiversityDivisor       float64 `yaml:"diversity_divisor"`
	DiversityCap           float64 `yaml:"diversity_cap"`
	DurationMinMinutes     float64 `yaml:"duration_min_minutes"`
	DurationMaxMinutes     float64 `yaml:"duration_max_minutes"`
	DurationWeight         float64 `yaml:"duration_weight"`
	DurationDecayPerMinute float64 `yaml:"duration_decay_per_minute"`
	DurationFloor          float64 `yaml:"duration_floor"`
	ActivityMinPerMinute   float64 `yaml:"activity_min_per_minute"`
	ActivityMaxPerMinute   float64 `yaml:"activity_max_per_minute"`
	ActivityWeight         float64 `yaml:"activity_weight"`
	SubmitWeight           float64 `yaml:"submit_weight"`
	FieldChangeThreshold   int     `yaml:"field_change_threshold"`
	FieldChangeWeight      float64 `yaml:"field_change_weight"`
}

type ConversionConfig struct {
	Base                float64 `yaml:"base"`
	ReturningBonus      float64 `yaml:"returning_bonus"`
	SubmitBonus         float64 `yaml:"submit_bonus"`
	AdaptationBonus     float64 `yaml:"adaptation_bonus"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	ConfidenceBonus     float64 `yaml:"confidence_bonus"`
	AbandonmentPenalty  float64 `yaml:"abandonment_penalty"`
	ErrorRateThreshold  float64 `yaml:"error_rate_threshold"`
	ErrorPenalty        float64 `yaml:"error_penalty"`
	LongSessionMinutes  float64 `yaml:"long_session_minutes"`
	LongSessionPenalty  float64 `yaml:"long_session_penalty"`
}

type AssistanceConfig struct {
	ErrorRate         float64 `yaml:"error_rate"`
	HesitationMs      float64 `yaml:"hesitation_ms"`
	FailedSubmissions int     `yaml:"failed_submissions"`
	TypingConfidence  float64 `yaml:"typing_confidence"`
}

type AbandonmentConfig struct {
	LongSessionMinutes   float64 `yaml:"long_session_minutes"`
	LongSessionMinEvents int     `yaml:"long_session_min_events"`
	SparseEvents         int     `yaml:"sparse_events"`
	SparseDurationMs     int64   `yaml:"sparse_duration_ms"`
	MaxVisibilityChanges int     `yaml:"max_visibility_changes"`
	MinRecentEngagement  float64 `yaml:"min_recent_engagement"`
}

// AnalyzerConfig tunes how raw events move the behavioral estimates
type AnalyzerConfig struct {
	EngagementStep      float64 `yaml:"engagement_step"`
	TypingReferenceMs   float64 `yaml:"typing_reference_ms"`
	TypingPauseMs       int64   `yaml:"typing_pause_ms"`
	Smoothing           float64 `yaml:"smoothing"`
	ScrollsPerMinuteMax float64 `yaml:"scrolls_per_minute_max"`
	RapidClickMin       int     `yaml:"rapid_click_min"`
	RapidClickWindowMs  int64   `yaml:"rapid_click_window_ms"`
	RapidClickRadiusPx  int     `yaml:"rapid_click_radius_px"`
	RevisitWindowMs     int64   `yaml:"revisit_window_ms"`
	MinTypingSamples    int     `yaml:"min_typing_samples"`
	PriorWeight         float64 `yaml:"prior_weight"`
	HesitationScaleMs   float64 `yaml:"hesitation_scale_ms"`
}

type RecommendationConfig struct {
	MobilePrecision float64 `yaml:"mobile_precision"`
	FastTyping      float64 `yaml:"fast_typing"`
}

// ClassifierConfig tunes the per-form user type classification
type ClassifierConfig struct {
	MinEvents          int     `yaml:"min_events"`
	FastKeysPerMinute  float64 `yaml:"fast_keys_per_minute"`
	SlowKeysPerMinute  float64 `yaml:"slow_keys_per_minute"`
	CorrectionRate     float64 `yaml:"correction_rate"`
	MinKeysForRate     int     `yaml:"min_keys_for_rate"`
	HelpRequests       int     `yaml:"help_requests"`
	JumpingShare       float64 `yaml:"jumping_share"`
	MinFocusEvents     int     `yaml:"min_focus_events"`
	ConfidenceEvents   float64 `yaml:"confidence_events"`
	ConfidenceDuration float64 `yaml:"confidence_duration_ms"`
}

// BehavioralPriors seed a new session when the user has no history
type BehavioralPriors struct {
	TypingSpeed      float64 `yaml:"typing_speed"`
	ErrorRate        float64 `yaml:"error_rate"`
	ConfidenceLevel  float64 `yaml:"confidence_level"`
	HesitationMs     float64 `yaml:"hesitation_ms"`
	Precision        float64 `yaml:"precision"`
	HelpSeeking      float64 `yaml:"help_seeking"`
	ScrollFrequency  float64 `yaml:"scroll_frequency"`
	TypingConfidence float64 `yaml:"typing_confidence"`
	RecentEngagement float64 `yaml:"recent_engagement"`
}

// DefaultScoring returns the production scoring model
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		Engagement: EngagementConfig{
			DiversityDivisor:       6,
			DiversityCap:           0.3,
			DurationMinMinutes:     2,
			DurationMaxMinutes:     5,
			DurationWeight:         0.3,
			DurationDecayPerMinute: 0.05,
			DurationFloor:          0.1,
			ActivityMinPerMinute:   5,
			ActivityMaxPerMinute:   20,
			ActivityWeight:         0.2,
			SubmitWeight:           0.2,
			FieldChangeThreshold:   3,
			FieldChangeWeight:      0.1,
		},
		Conversion: ConversionConfig{
			Base:                0.5,
			ReturningBonus:      0.2,
			SubmitBonus:         0.3,
			AdaptationBonus:     0.1,
			ConfidenceThreshold: 0.7,
			ConfidenceBonus:     0.15,
			AbandonmentPenalty:  0.2,
			ErrorRateThreshold:  0.2,
			ErrorPenalty:        0.15,
			LongSessionMinutes:  10,
			LongSessionPenalty:  0.1,
		},
		Assistance: AssistanceConfig{
			ErrorRate:         0.25,
			HesitationMs:      5000,
			FailedSubmissions: 1,
			TypingConfidence:  0.3,
		},
		Abandonment: AbandonmentConfig{
			LongSessionMinutes:   10,
			LongSessionMinEvents: 10,
			SparseEvents:         3,
			SparseDurationMs:     30000,
			MaxVisibilityChanges: 3,
			MinRecentEngagement:  0.3,
		},
		HighValue: 0.7,
		Analyzer: AnalyzerConfig{
			EngagementStep:      0.1,
			TypingReferenceMs:   150,
			TypingPauseMs:       2000,
			Smoothing:           0.2,
			ScrollsPerMinuteMax: 30,
			RapidClickMin:       3,
			RapidClickWindowMs:  1000,
			RapidClickRadiusPx:  30,
			RevisitWindowMs:     10000,
			MinTypingSamples:    10,
			PriorWeight:         5,
			HesitationScaleMs:   10000,
		},
		Recommendation: RecommendationConfig{
			MobilePrecision: 0.5,
			FastTyping:      0.8,
		},
		Priors: BehavioralPriors{
			TypingSpeed:      0.5,
			ErrorRate:        0.1,
			ConfidenceLevel:  0.5,
			HesitationMs:     2000,
			Precision:        0.5,
			HelpSeeking:      0.3,
			ScrollFrequency:  0.3,
			TypingConfidence: 0.5,
			RecentEngagement: 0.5,
		},
		Classifier: ClassifierConfig{
			MinEvents:          3,
			FastKeysPerMinute:  250,
			SlowKeysPerMinute:  120,
			CorrectionRate:     0.15,
			MinKeysForRate:     5,
			HelpRequests:       2,
			JumpingShare:       0.3,
			MinFocusEvents:     3,
			ConfidenceEvents:   50,
			ConfidenceDuration: 300000,
		},
	}
}
