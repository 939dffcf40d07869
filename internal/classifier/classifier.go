// Package classifier estimates coarse behavioral traits from the raw events
// of one form: typing speed, navigation style and a user type used by the
// fallback rule engine.
package classifier

import (
	"math"

	"github.com/gosight/formsight/internal/config"
	"github.com/gosight/formsight/internal/model"
)

// User types
const (
	UserTypeFast       = "fast"
	UserTypeStruggling = "struggling"
	UserTypeCareful    = "careful"
	UserTypeTypical    = "typical"
)

// Navigation styles
const (
	NavigationLinear    = "linear"
	NavigationSearching = "searching"
	NavigationJumping   = "jumping"
)

// Classification is the outcome of Classify
type Classification struct {
	UserType        string  `json:"userType"`
	TypingSpeed     float64 `json:"typingSpeed"`
	NavigationStyle string  `json:"navigationStyle"`
	CorrectionRate  float64 `json:"correctionRate"`
	Confidence      float64 `json:"confidence"`
	EventCount      int     `json:"eventCount"`
	DurationMs      int64   `json:"durationMs"`
}

// Classifier applies the classifier thresholds to event sequences
type Classifier struct {
	th config.ClassifierConfig
}

func New(th config.ClassifierConfig) *Classifier {
	return &Classifier{th: th}
}

// TypingSpeed returns key presses per minute between the first and last
// key press. Fewer than two key presses or a zero span yields 0.
func TypingSpeed(events []model.BehaviorEvent) float64 {
	var count int
	var first, last int64
	for _, e := range events {
		if e.EventType != model.EventKeyPress {
			continue
		}
		if count == 0 || e.Timestamp < first {
			first = e.Timestamp
		}
		if count == 0 || e.Timestamp > last {
			last = e.Timestamp
		}
		count++
	}
	if count < 2 {
		return 0
	}
	spanMinutes := float64(last-first) / 60000
	if spanMinutes <= 0 {
		return 0
	}
	return float64(count) / spanMinutes
}

// NavigationStyle classifies focus order. Field names are compared
// lexically as a stand-in for their position in the form, which only
// approximates the real layout.
func (c *Classifier) NavigationStyle(events []model.BehaviorEvent) string {
	var fields []string
	for _, e := range events {
		if e.EventType == model.EventFocus {
			fields = append(fields, e.FieldName)
		}
	}
	if len(fields) < c.th.MinFocusEvents {
		return NavigationLinear
	}

	var searches, jumps int
	for i := 1; i < len(fields); i++ {
		switch {
		case fields[i] < fields[i-1]:
			searches++
		case fields[i] > fields[i-1]:
			jumps++
		}
	}

	switch {
	case searches > jumps:
		return NavigationSearching
	case float64(jumps) > float64(len(fields))*c.th.JumpingShare:
		return NavigationJumping
	default:
		return NavigationLinear
	}
}

// Confidence scores how much signal a classification rests on:
// min(n/50,1)*0.6 + min(d/300000,1)*0.4 with the default thresholds,
// rounded to two decimals.
func (c *Classifier) Confidence(eventCount int, durationMs int64) float64 {
	events := math.Min(float64(eventCount)/c.th.ConfidenceEvents, 1)
	duration := math.Min(float64(durationMs)/c.th.ConfidenceDuration, 1)
	if duration < 0 {
		duration = 0
	}
	return math.Round((events*0.6+duration*0.4)*100) / 100
}

// Classify derives a Classification from the events of one form. With too
// few events it returns the typical user type and a low confidence rather
// than an error.
func (c *Classifier) Classify(events []model.BehaviorEvent) Classification {
	out := Classification{
		UserType:        UserTypeTypical,
		NavigationStyle: NavigationLinear,
		EventCount:      len(events),
	}
	if len(events) == 0 {
		return out
	}

	first, last := events[0].Timestamp, events[0].Timestamp
	var keys, corrections, helps, failedSubmits int
	for _, e := range events {
		if e.Timestamp < first {
			first = e.Timestamp
		}
		if e.Timestamp > last {
			last = e.Timestamp
		}
		switch e.EventType {
		case model.EventKeyPress:
			keys++
			if IsCorrectionKey(e.DataString("key")) {
				corrections++
			}
		case model.EventHelpRequest:
			helps++
		case model.EventFormSubmit:
			if ok, present := e.DataBool("success"); present && !ok {
				failedSubmits++
			}
		}
	}

	out.DurationMs = last - first
	out.TypingSpeed = TypingSpeed(events)
	out.NavigationStyle = c.NavigationStyle(events)
	if keys > 0 {
		out.CorrectionRate = float64(corrections) / float64(keys)
	}
	out.Confidence = c.Confidence(len(events), out.DurationMs)

	if len(events) < c.th.MinEvents {
		return out
	}

	switch {
	case keys >= c.th.MinKeysForRate && out.CorrectionRate > c.th.CorrectionRate,
		failedSubmits > 0,
		helps >= c.th.HelpRequests,
		out.NavigationStyle == NavigationSearching:
		out.UserType = UserTypeStruggling
	case out.TypingSpeed >= c.th.FastKeysPerMinute:
		out.UserType = UserTypeFast
	case out.TypingSpeed > 0 && out.TypingSpeed < c.th.SlowKeysPerMinute:
		out.UserType = UserTypeCareful
	}
	return out
}

// IsCorrectionKey reports whether key erases input
func IsCorrectionKey(key string) bool {
	return key == "Backspace" || key == "Delete"
}

// MinFocusEvents is the number of focus events a navigation style needs
func (c *Classifier) MinFocusEvents() int {
	return c.th.MinFocusEvents
}
