package enricher

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/stretchr/testify/assert"

	"github.com/gosight/formsight/internal/model"
)

type fakeGeo struct {
	city *geoip2.City
}

func (f *fakeGeo) City(ip net.IP) (*geoip2.City, error) {
	if ip.Equal(net.ParseIP("203.0.113.7")) {
		return f.city, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeGeo) Close() error { return nil }

func newTestEnricher() *Enricher {
	city := &geoip2.City{}
	city.Country.IsoCode = "JP"
	city.Location.TimeZone = "Asia/Tokyo"
	return &Enricher{
		geoIP: &fakeGeo{city: city},
		now:   func() time.Time { return time.UnixMilli(1709719200000) },
	}
}

func TestEnrich(t *testing.T) {
	e := newTestEnricher()
	raw := map[string]interface{}{
		"event_id":   "e1",
		"type":       "key_press",
		"timestamp":  float64(1709719199000),
		"form_id":    "signup",
		"field_name": "email",
		"url":        "https://example.com/signup",
		"data":       map[string]interface{}{"key": "a"},
		// batch ids win over anything the event carries
		"session_id": "spoofed",
	}
	ua := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

	got := e.Enrich(raw, "s1", "u1", Environment{ViewportWidth: 390, TouchPoints: 5}, ua, "203.0.113.7")

	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "key_press", got.Type)
	assert.Equal(t, int64(1709719199000), got.Timestamp)
	assert.Equal(t, "signup", got.FormID)
	assert.Equal(t, "email", got.FieldName)
	assert.Equal(t, "a", got.Data["key"])
	assert.Equal(t, int64(1709719200000), got.ServerTimestamp)
	assert.Equal(t, model.DeviceMobile, got.DeviceType)
	assert.Equal(t, "Safari", got.Browser)
	assert.Equal(t, 390, got.ViewportWidth)
	assert.Equal(t, "JP", got.Country)
	assert.Equal(t, "Asia/Tokyo", got.Timezone)
}

func TestEnrichKeepsClientTimezone(t *testing.T) {
	e := newTestEnricher()
	got := e.Enrich(map[string]interface{}{"type": "focus"}, "s1", "", Environment{Timezone: "Europe/Paris"}, "", "203.0.113.7")
	assert.Equal(t, "JP", got.Country)
	assert.Equal(t, "Europe/Paris", got.Timezone)
	assert.Empty(t, got.DeviceType)
}

func TestEnrichWithoutGeoIP(t *testing.T) {
	e := NewEnricher("")
	defer e.Close()
	got := e.Enrich(map[string]interface{}{"type": "focus"}, "s1", "", Environment{}, "", "203.0.113.7")
	assert.Empty(t, got.Country)
	assert.Empty(t, got.Timezone)
}

func TestNewEnricherMissingDatabase(t *testing.T) {
	e := NewEnricher("/nonexistent/GeoLite2-City.mmdb")
	assert.Nil(t, e.geoIP)
}
