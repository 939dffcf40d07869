package transformer

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gosight/formsight/internal/detect"
	"github.com/gosight/formsight/internal/model"
	"github.com/gosight/formsight/internal/storage"
)

// ErrMissingSession is returned for payloads without a session id
var ErrMissingSession = errors.New("transformer: missing session_id")

// EnrichedEvent represents the event structure from the ingestor
type EnrichedEvent struct {
	EventID         string                 `json:"event_id"`
	Type            string                 `json:"type"`
	Timestamp       int64                  `json:"timestamp"`
	SessionID       string                 `json:"session_id"`
	UserID          string                 `json:"user_id"`
	FormID          string                 `json:"form_id"`
	FieldName       string                 `json:"field_name"`
	URL             string                 `json:"url"`
	Data            map[string]interface{} `json:"data"`
	ServerTimestamp int64                  `json:"server_timestamp"`
	UserAgent       string                 `json:"user_agent"`
	Browser         string                 `json:"browser"`
	OS              string                 `json:"os"`
	DeviceType      string                 `json:"device_type"`
	Country         string                 `json:"country"`
	Timezone        string                 `json:"timezone"`
	ViewportWidth   int                    `json:"viewport_width"`
	ViewportHeight  int                    `json:"viewport_height"`
	ScreenWidth     int                    `json:"screen_width"`
	ScreenHeight    int                    `json:"screen_height"`
	TouchPoints     int                    `json:"touch_points"`
	ConnectionType  string                 `json:"connection_type"`
	Downlink        float64                `json:"downlink"`
	Language        string                 `json:"language"`
}

// BehaviorEvent returns the core event carried by e
func (e *EnrichedEvent) BehaviorEvent() model.BehaviorEvent {
	return model.BehaviorEvent{
		EventID:   e.EventID,
		SessionID: e.SessionID,
		FormID:    e.FormID,
		EventType: model.EventType(e.Type),
		FieldName: e.FieldName,
		Timestamp: e.Timestamp,
		Data:      e.Data,
		UserAgent: e.UserAgent,
		URL:       e.URL,
	}
}

// TransformResult is everything the session processor needs from one message
type TransformResult struct {
	Event       model.BehaviorEvent
	UserID      string
	Environment detect.Environment
	Row         storage.EventRow
}

// TransformEvent converts a raw Kafka payload into a behavior event, the
// environment snapshot used when the session is new, and the analytics row.
// The event itself is validated later by the session.
func TransformEvent(raw map[string]interface{}) (*TransformResult, error) {
	event := parseEnrichedEvent(raw)
	if event.SessionID == "" {
		return nil, ErrMissingSession
	}

	be := event.BehaviorEvent()

	env := detect.Environment{
		UserAgent:      event.UserAgent,
		ViewportWidth:  event.ViewportWidth,
		ViewportHeight: event.ViewportHeight,
		ScreenWidth:    event.ScreenWidth,
		ScreenHeight:   event.ScreenHeight,
		TouchPoints:    event.TouchPoints,
		ConnectionType: event.ConnectionType,
		Downlink:       event.Downlink,
		Language:       event.Language,
		Timezone:       event.Timezone,
	}
	if event.ServerTimestamp > 0 {
		env.Now = time.UnixMilli(event.ServerTimestamp)
	}

	row := storage.EventRow{
		EventID:    event.EventID,
		SessionID:  event.SessionID,
		UserID:     event.UserID,
		FormID:     event.FormID,
		EventType:  event.Type,
		FieldName:  event.FieldName,
		Timestamp:  time.UnixMilli(event.Timestamp),
		PageURL:    event.URL,
		Browser:    event.Browser,
		OS:         event.OS,
		DeviceType: event.DeviceType,
		Country:    event.Country,
	}

	// Store payload as JSON
	if event.Data != nil {
		payloadBytes, _ := json.Marshal(event.Data)
		row.Payload = string(payloadBytes)
	}

	return &TransformResult{
		Event:       be,
		UserID:      event.UserID,
		Environment: env,
		Row:         row,
	}, nil
}

func parseEnrichedEvent(raw map[string]interface{}) *EnrichedEvent {
	event := &EnrichedEvent{}

	// Validate event_id is a proper UUID, generate new one if invalid
	if v, ok := raw["event_id"].(string); ok {
		if _, err := uuid.Parse(v); err == nil {
			event.EventID = v
		} else {
			event.EventID = uuid.New().String()
		}
	} else {
		event.EventID = uuid.New().String()
	}

	event.Type = getString(raw, "type")
	event.Timestamp = getInt64(raw, "timestamp")
	event.SessionID = getString(raw, "session_id")
	event.UserID = getString(raw, "user_id")
	event.FormID = getString(raw, "form_id")
	event.FieldName = getString(raw, "field_name")
	event.URL = getString(raw, "url")
	if v, ok := raw["data"].(map[string]interface{}); ok {
		event.Data = v
	}
	event.ServerTimestamp = getInt64(raw, "server_timestamp")
	event.UserAgent = getString(raw, "user_agent")
	event.Browser = getString(raw, "browser")
	event.OS = getString(raw, "os")
	event.DeviceType = getString(raw, "device_type")
	event.Country = getString(raw, "country")
	event.Timezone = getString(raw, "timezone")
	event.ViewportWidth = getInt(raw, "viewport_width")
	event.ViewportHeight = getInt(raw, "viewport_height")
	event.ScreenWidth = getInt(raw, "screen_width")
	event.ScreenHeight = getInt(raw, "screen_height")
	event.TouchPoints = getInt(raw, "touch_points")
	event.ConnectionType = getString(raw, "connection_type")
	if v, ok := raw["downlink"].(float64); ok {
		event.Downlink = v
	}
	event.Language = getString(raw, "language")

	return event
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getInt64(m map[string]interface{}, key string) int64 {
	if v, ok := m[key].(float64); ok {
		return int64(v)
	}
	return 0
}

func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}
