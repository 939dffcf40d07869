package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBehaviorEventValidate(t *testing.T) {
	valid := BehaviorEvent{
		SessionID: "s1",
		FormID:    "signup",
		EventType: EventFocus,
		FieldName: "email",
		Timestamp: 1700000000000,
	}

	tests := []struct {
		name    string
		mutate  func(e *BehaviorEvent)
		wantErr bool
		field   string
	}{
		{name: "valid", mutate: func(e *BehaviorEvent) {}},
		{name: "missing session", mutate: func(e *BehaviorEvent) { e.SessionID = "" }, wantErr: true, field: "SessionID"},
		{name: "missing form", mutate: func(e *BehaviorEvent) { e.FormID = "" }, wantErr: true, field: "FormID"},
		{name: "unknown type", mutate: func(e *BehaviorEvent) { e.EventType = "hover" }, wantErr: true, field: "EventType"},
		{name: "zero timestamp", mutate: func(e *BehaviorEvent) { e.Timestamp = 0 }, wantErr: true, field: "Timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			err := e.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Contains(t, vErr.Reason, tt.field)
		})
	}
}

func TestBehaviorEventDataAccessors(t *testing.T) {
	e := BehaviorEvent{Data: map[string]interface{}{
		"key":   "Backspace",
		"x":     float64(12),
		"valid": false,
	}}

	assert.Equal(t, "Backspace", e.DataString("key"))
	assert.Equal(t, "", e.DataString("missing"))

	x, ok := e.DataFloat("x")
	assert.True(t, ok)
	assert.Equal(t, 12.0, x)

	_, ok = e.DataFloat("key")
	assert.False(t, ok)

	valid, ok := e.DataBool("valid")
	assert.True(t, ok)
	assert.False(t, valid)
}

func TestUserHistoryUpsertTrimsToTen(t *testing.T) {
	h := &UserHistory{UserID: "u1"}

	for i := 0; i < 12; i++ {
		added := h.Upsert(SessionSummary{SessionID: fmt.Sprintf("s%d", i), TypingSpeed: float64(i)})
		assert.True(t, added)
	}

	require.Len(t, h.Sessions, MaxSessionSummaries)
	assert.Equal(t, 12, h.TotalSessions)
	assert.Equal(t, "s2", h.Sessions[0].SessionID)
	assert.Equal(t, "s11", h.Sessions[9].SessionID)
	// mean of 2..11
	assert.InDelta(t, 6.5, h.TypingSpeed, 1e-9)
}

func TestUserHistoryUpsertReplacesExisting(t *testing.T) {
	h := &UserHistory{UserID: "u1"}
	h.Upsert(SessionSummary{SessionID: "s1", ErrorRate: 0.4})
	added := h.Upsert(SessionSummary{SessionID: "s1", ErrorRate: 0.2})

	assert.False(t, added)
	assert.Equal(t, 1, h.TotalSessions)
	assert.Len(t, h.Sessions, 1)
	assert.InDelta(t, 0.2, h.ErrorRate, 1e-9)
	assert.True(t, h.HasSession("s1"))
	assert.False(t, h.HasSession("s2"))
}

func TestSessionStateCloneIsDeep(t *testing.T) {
	s := &SessionState{
		SessionID: "s1",
		Events: []BehaviorEvent{{
			SessionID: "s1", FormID: "f", EventType: EventKeyPress, Timestamp: 1,
			Data: map[string]interface{}{"key": "a"},
		}},
		Profile: &UserProfile{UserType: "fast"},
	}
	s.Context.Session.FieldsTouched = []string{"email"}

	c := s.Clone()
	c.Events[0].Data["key"] = "b"
	c.Profile.UserType = "slow"
	c.Context.Session.FieldsTouched[0] = "name"

	assert.Equal(t, "a", s.Events[0].Data["key"])
	assert.Equal(t, "fast", s.Profile.UserType)
	assert.Equal(t, "email", s.Context.Session.FieldsTouched[0])
}

func TestAdaptationValidate(t *testing.T) {
	valid := Adaptation{
		AdaptationType: AdaptationErrorPrevention,
		Confidence:     0.7,
		Metadata:       map[string]string{MetadataSource: SourceFallback},
	}

	tests := []struct {
		name   string
		mutate func(a *Adaptation)
		field  string
	}{
		{name: "valid", mutate: func(a *Adaptation) {}},
		{name: "unknown type", mutate: func(a *Adaptation) { a.AdaptationType = "bogus" }, field: "AdaptationType"},
		{name: "confidence above one", mutate: func(a *Adaptation) { a.Confidence = 5 }, field: "Confidence"},
		{name: "negative confidence", mutate: func(a *Adaptation) { a.Confidence = -0.1 }, field: "Confidence"},
		{name: "no metadata", mutate: func(a *Adaptation) { a.Metadata = nil }, field: "Metadata"},
		{name: "unknown source", mutate: func(a *Adaptation) { a.Metadata = map[string]string{MetadataSource: "manual"} }, field: "Metadata"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.mutate(&a)
			err := a.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Contains(t, vErr.Reason, tt.field)
		})
	}
}
