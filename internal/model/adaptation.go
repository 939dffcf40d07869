package model

// AdaptationType is the kind of UI change proposed for a form
type AdaptationType string

const (
	AdaptationFieldReorder          AdaptationType = "field_reorder"
	AdaptationProgressiveDisclosure AdaptationType = "progressive_disclosure"
	AdaptationContextSwitching      AdaptationType = "context_switching"
	AdaptationErrorPrevention       AdaptationType = "error_prevention"
	AdaptationCompletionGuidance    AdaptationType = "completion_guidance"
)

// KnownAdaptationTypes lists every adaptation type
var KnownAdaptationTypes = []AdaptationType{
	AdaptationFieldReorder,
	AdaptationProgressiveDisclosure,
	AdaptationContextSwitching,
	AdaptationErrorPrevention,
	AdaptationCompletionGuidance,
}

// IsKnownAdaptationType reports whether t is one of KnownAdaptationTypes
func IsKnownAdaptationType(t AdaptationType) bool {
	for _, k := range KnownAdaptationTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Adaptation sources recorded under MetadataSource
const (
	MetadataSource = "source"
	SourceML       = "ml"
	SourceFallback = "fallback"
)

// Adaptation is a proposed or applied UI change.
type Adaptation struct {
	ID             string            `json:"id"`
	SessionID      string            `json:"sessionId"`
	FormID         string            `json:"formId"`
	AdaptationType AdaptationType    `json:"adaptationType" validate:"required,adaptationtype"`
	Confidence     float64           `json:"confidence" validate:"gte=0,lte=1"`
	Config         AdaptationConfig  `json:"config"`
	AppliedAt      int64             `json:"appliedAt,omitempty"`
	IsActive       bool              `json:"isActive"`
	Metadata       map[string]string `json:"metadata,omitempty" validate:"source"`
}

// Validate checks the type, the confidence range and the source tag.
// The returned error is always a *ValidationError.
func (a *Adaptation) Validate() error {
	return validationError(a.ID, validate.Struct(a))
}

// Source returns the metadata source tag (ml or fallback)
func (a *Adaptation) Source() string {
	return a.Metadata[MetadataSource]
}

// AdaptationConfig carries the typed parameters. Exactly one member is set,
// matching the adaptation type.
type AdaptationConfig struct {
	FieldReorder          *FieldReorderConfig          `json:"fieldReorder,omitempty"`
	ProgressiveDisclosure *ProgressiveDisclosureConfig `json:"progressiveDisclosure,omitempty"`
	ContextSwitching      *ContextSwitchingConfig      `json:"contextSwitching,omitempty"`
	ErrorPrevention       *ErrorPreventionConfig       `json:"errorPrevention,omitempty"`
	CompletionGuidance    *CompletionGuidanceConfig    `json:"completionGuidance,omitempty"`
}

type FieldReorderConfig struct {
	Order    []string `json:"order,omitempty"`
	Strategy string   `json:"strategy,omitempty"`
}

type ProgressiveDisclosureConfig struct {
	InitialFields int    `json:"initialFields"`
	Strategy      string `json:"strategy"`
}

type ContextSwitchingConfig struct {
	MobileOptimized bool `json:"mobileOptimized"`
	ReducedFields   bool `json:"reducedFields"`
}

type ErrorPreventionConfig struct {
	RealtimeValidation bool `json:"realtimeValidation"`
	InlineHelp         bool `json:"inlineHelp"`
}

type CompletionGuidanceConfig struct {
	ProgressIndicator    bool `json:"progressIndicator"`
	ConfirmationMessages bool `json:"confirmationMessages"`
}

// AdaptationRecord is an applied adaptation together with the session
// context at the time it was applied.
type AdaptationRecord struct {
	Adaptation Adaptation      `json:"adaptation"`
	Snapshot   ContextSnapshot `json:"snapshot"`
}

// ContextSnapshot freezes the scores that were current when an adaptation
// was recorded, for later effectiveness analysis.
type ContextSnapshot struct {
	TotalEvents          int               `json:"totalEvents"`
	SessionDuration      int64             `json:"sessionDuration"`
	EngagementScore      float64           `json:"engagementScore"`
	ConversionLikelihood float64           `json:"conversionLikelihood"`
	Behavioral           BehavioralContext `json:"behavioral"`
	Flags                Flags             `json:"flags"`
}
