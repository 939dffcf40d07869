// Package rules is the deterministic adaptation generator used when ML
// inference is unavailable.
package rules

import (
	"github.com/google/uuid"

	"github.com/gosight/formsight/internal/classifier"
	"github.com/gosight/formsight/internal/model"
)

// MinEvents is the number of form events needed before any adaptation is
// proposed
const MinEvents = 3

// Input is the coarse signal the engine maps to adaptations
type Input struct {
	SessionID  string
	FormID     string
	UserType   string
	DeviceType string
	EventCount int
}

// Engine maps user types to fallback adaptations
type Engine struct {
	newID func() string
}

func NewEngine() *Engine {
	return &Engine{newID: uuid.NewString}
}

// Generate returns one adaptation for the user type, plus a context switch
// for mobile devices. With fewer than MinEvents events it returns an empty
// slice.
func (e *Engine) Generate(in Input) []model.Adaptation {
	out := make([]model.Adaptation, 0, 2)
	if in.EventCount < MinEvents {
		return out
	}

	switch in.UserType {
	case classifier.UserTypeFast:
		out = append(out, e.adaptation(in, model.AdaptationProgressiveDisclosure, 0.6, model.AdaptationConfig{
			ProgressiveDisclosure: &model.ProgressiveDisclosureConfig{InitialFields: 3, Strategy: "efficiency"},
		}))
	case classifier.UserTypeStruggling:
		out = append(out, e.adaptation(in, model.AdaptationErrorPrevention, 0.7, model.AdaptationConfig{
			ErrorPrevention: &model.ErrorPreventionConfig{RealtimeValidation: true, InlineHelp: true},
		}))
	case classifier.UserTypeCareful:
		out = append(out, e.adaptation(in, model.AdaptationCompletionGuidance, 0.5, model.AdaptationConfig{
			CompletionGuidance: &model.CompletionGuidanceConfig{ProgressIndicator: true, ConfirmationMessages: true},
		}))
	}

	if in.DeviceType == model.DeviceMobile {
		out = append(out, e.adaptation(in, model.AdaptationContextSwitching, 0.8, model.AdaptationConfig{
			ContextSwitching: &model.ContextSwitchingConfig{MobileOptimized: true, ReducedFields: true},
		}))
	}
	return out
}

func (e *Engine) adaptation(in Input, t model.AdaptationType, confidence float64, cfg model.AdaptationConfig) model.Adaptation {
	return model.Adaptation{
		ID:             e.newID(),
		SessionID:      in.SessionID,
		FormID:         in.FormID,
		AdaptationType: t,
		Confidence:     confidence,
		Config:         cfg,
		Metadata: map[string]string{
			model.MetadataSource: model.SourceFallback,
			"user_type":          in.UserType,
		},
	}
}
