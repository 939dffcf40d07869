package enricher

import (
	"net"
	"time"

	"github.com/mssola/useragent"
	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"

	"github.com/gosight/formsight/internal/model"
	"github.com/gosight/formsight/internal/transformer"
)

type cityLookup interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// Environment is the batch-level browser snapshot sent by the capture layer
type Environment struct {
	ViewportWidth  int     `json:"viewport_width"`
	ViewportHeight int     `json:"viewport_height"`
	ScreenWidth    int     `json:"screen_width"`
	ScreenHeight   int     `json:"screen_height"`
	TouchPoints    int     `json:"touch_points"`
	ConnectionType string  `json:"connection_type"`
	Downlink       float64 `json:"downlink"`
	Language       string  `json:"language"`
	Timezone       string  `json:"timezone"`
}

type Enricher struct {
	geoIP cityLookup
	now   func() time.Time
}

// NewEnricher loads the GeoIP database when a path is given. A missing or
// unreadable database only disables country and timezone lookup.
func NewEnricher(geoIPPath string) *Enricher {
	e := &Enricher{now: time.Now}
	if geoIPPath != "" {
		reader, err := geoip2.Open(geoIPPath)
		if err != nil {
			log.Warn().Err(err).Str("path", geoIPPath).Msg("GeoIP database unavailable, skipping geo enrichment")
		} else {
			e.geoIP = reader
		}
	}
	return e
}

// Enrich builds the wire event from one raw capture event. Session and user
// ids come from the batch, not from the event.
func (e *Enricher) Enrich(event map[string]interface{}, sessionID, userID string, env Environment, userAgentString, clientIP string) *transformer.EnrichedEvent {
	enriched := &transformer.EnrichedEvent{
		SessionID:       sessionID,
		UserID:          userID,
		ServerTimestamp: e.now().UnixMilli(),
		UserAgent:       userAgentString,
		ViewportWidth:   env.ViewportWidth,
		ViewportHeight:  env.ViewportHeight,
		ScreenWidth:     env.ScreenWidth,
		ScreenHeight:    env.ScreenHeight,
		TouchPoints:     env.TouchPoints,
		ConnectionType:  env.ConnectionType,
		Downlink:        env.Downlink,
		Language:        env.Language,
		Timezone:        env.Timezone,
	}

	// Copy original event fields
	if v, ok := event["event_id"].(string); ok {
		enriched.EventID = v
	}
	if v, ok := event["type"].(string); ok {
		enriched.Type = v
	}
	if v, ok := event["timestamp"].(float64); ok {
		enriched.Timestamp = int64(v)
	}
	if v, ok := event["form_id"].(string); ok {
		enriched.FormID = v
	}
	if v, ok := event["field_name"].(string); ok {
		enriched.FieldName = v
	}
	if v, ok := event["url"].(string); ok {
		enriched.URL = v
	}
	if v, ok := event["data"].(map[string]interface{}); ok {
		enriched.Data = v
	}

	// Parse user agent
	if userAgentString != "" {
		ua := useragent.New(userAgentString)
		enriched.Browser, _ = ua.Browser()
		enriched.OS = ua.OS()
		enriched.DeviceType = getDeviceType(ua)
	}

	// GeoIP lookup
	if e.geoIP != nil && clientIP != "" {
		if ip := net.ParseIP(clientIP); ip != nil {
			record, err := e.geoIP.City(ip)
			if err == nil {
				enriched.Country = record.Country.IsoCode
				if enriched.Timezone == "" {
					enriched.Timezone = record.Location.TimeZone
				}
			}
		}
	}

	return enriched
}

func getDeviceType(ua *useragent.UserAgent) string {
	if ua.Bot() {
		return model.DeviceBot
	}
	if ua.Mobile() {
		return model.DeviceMobile
	}
	return model.DeviceDesktop
}

func (e *Enricher) Close() {
	if e.geoIP != nil {
		e.geoIP.Close()
	}
}
