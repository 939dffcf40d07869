package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// EventType identifies what the capture layer observed
type EventType string

const (
	EventPageLoad         EventType = "page_load"
	EventMouseMove        EventType = "mouse_move"
	EventMouseClick       EventType = "mouse_click"
	EventKeyPress         EventType = "key_press"
	EventFocus            EventType = "focus"
	EventBlur             EventType = "blur"
	EventFieldChange      EventType = "field_change"
	EventScroll           EventType = "scroll"
	EventFormSubmit       EventType = "form_submit"
	EventVisibilityChange EventType = "visibility_change"
	EventHelpRequest      EventType = "help_request"
)

// KnownEventTypes lists every accepted event type
var KnownEventTypes = []EventType{
	EventPageLoad, EventMouseMove, EventMouseClick, EventKeyPress, EventFocus,
	EventBlur, EventFieldChange, EventScroll, EventFormSubmit,
	EventVisibilityChange, EventHelpRequest,
}

// BehaviorEvent is a single interaction fact reported by the capture layer.
// Once accepted by a session it is never mutated.
type BehaviorEvent struct {
	EventID   string                 `json:"eventId,omitempty"`
	SessionID string                 `json:"sessionId" validate:"required,max=128"`
	FormID    string                 `json:"formId" validate:"required,max=128"`
	EventType EventType              `json:"eventType" validate:"required,eventtype"`
	FieldName string                 `json:"fieldName,omitempty" validate:"max=256"`
	Timestamp int64                  `json:"timestamp" validate:"gt=0"`
	Data      map[string]interface{} `json:"data,omitempty"`
	UserAgent string                 `json:"userAgent,omitempty"`
	URL       string                 `json:"url,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("eventtype", func(fl validator.FieldLevel) bool {
		return IsKnownEventType(EventType(fl.Field().String()))
	})
	_ = v.RegisterValidation("adaptationtype", func(fl validator.FieldLevel) bool {
		return IsKnownAdaptationType(AdaptationType(fl.Field().String()))
	})
	_ = v.RegisterValidation("source", func(fl validator.FieldLevel) bool {
		md, ok := fl.Field().Interface().(map[string]string)
		if !ok {
			return false
		}
		src := md[MetadataSource]
		return src == SourceML || src == SourceFallback
	})
	return v
}

// IsKnownEventType reports whether t is one of KnownEventTypes
func IsKnownEventType(t EventType) bool {
	for _, k := range KnownEventTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Validate checks the required fields of the event.
// The returned error is always a *ValidationError.
func (e *BehaviorEvent) Validate() error {
	return validationError(e.EventID, validate.Struct(e))
}

// validationError converts a validator result into a *ValidationError
func validationError(id string, err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Reason: err.Error()}
	}

	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
	}
	return &ValidationError{
		EventID: id,
		Fields:  fields,
		Reason:  "invalid fields: " + strings.Join(fields, ", "),
	}
}

// DataString returns a string value from the event payload
func (e *BehaviorEvent) DataString(key string) string {
	if v, ok := e.Data[key].(string); ok {
		return v
	}
	return ""
}

// DataFloat returns a numeric value from the event payload
func (e *BehaviorEvent) DataFloat(key string) (float64, bool) {
	switch v := e.Data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// DataBool returns a boolean value from the event payload
func (e *BehaviorEvent) DataBool(key string) (bool, bool) {
	v, ok := e.Data[key].(bool)
	return v, ok
}
