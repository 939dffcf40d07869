package detect

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"

	"github.com/gosight/formsight/internal/model"
)

const (
	uaIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	uaIPad    = "Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1"
	uaChrome  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaGoogleB = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func TestDetectDevice(t *testing.T) {
	tests := []struct {
		name string
		env  Environment
		want string
	}{
		{name: "iphone", env: Environment{UserAgent: uaIPhone}, want: model.DeviceMobile},
		{name: "ipad", env: Environment{UserAgent: uaIPad}, want: model.DeviceTablet},
		{name: "desktop chrome", env: Environment{UserAgent: uaChrome, ViewportWidth: 1440}, want: model.DeviceDesktop},
		{name: "bot", env: Environment{UserAgent: uaGoogleB}, want: model.DeviceBot},
		{name: "narrow touch viewport", env: Environment{ViewportWidth: 390, TouchPoints: 5}, want: model.DeviceMobile},
		{name: "medium touch viewport", env: Environment{ViewportWidth: 900, TouchPoints: 5}, want: model.DeviceTablet},
		{name: "narrow without touch", env: Environment{ViewportWidth: 390}, want: model.DeviceDesktop},
		{name: "empty", env: Environment{}, want: model.DeviceDesktop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectDevice(tt.env).Type)
		})
	}
}

func TestDetectDeviceSlowConnection(t *testing.T) {
	assert.True(t, DetectDevice(Environment{ConnectionType: "3g"}).SlowConnection)
	assert.True(t, DetectDevice(Environment{ConnectionType: "4g", Downlink: 0.8}).SlowConnection)
	assert.False(t, DetectDevice(Environment{ConnectionType: "4g", Downlink: 10}).SlowConnection)
}

func TestDetectBrowser(t *testing.T) {
	bc := DetectBrowser(Environment{UserAgent: uaChrome, Language: "en-US"})
	assert.Equal(t, "Chrome", bc.Name)
	assert.Equal(t, "120.0.0.0", bc.Version)
	assert.Equal(t, "en-US", bc.Language)

	empty := DetectBrowser(Environment{Language: "de"})
	assert.Equal(t, "", empty.Name)
	assert.Equal(t, "de", empty.Language)
}

func TestDetectTemporal(t *testing.T) {
	// Wednesday 2024-01-10 14:30 UTC
	now := time.Date(2024, 1, 10, 14, 30, 0, 0, time.UTC)

	utc := DetectTemporal(now, "")
	assert.Equal(t, "UTC", utc.Timezone)
	assert.Equal(t, 14, utc.LocalHour)
	assert.Equal(t, "wednesday", utc.DayOfWeek)
	assert.True(t, utc.IsBusinessHours)
	assert.False(t, utc.IsWeekend)
	assert.Equal(t, "afternoon", utc.TimeOfDay)

	tokyo := DetectTemporal(now, "Asia/Tokyo")
	assert.Equal(t, "Asia/Tokyo", tokyo.Timezone)
	assert.Equal(t, 23, tokyo.LocalHour)
	assert.Equal(t, "night", tokyo.TimeOfDay)
	assert.False(t, tokyo.IsBusinessHours)

	bogus := DetectTemporal(now, "Mars/Olympus")
	assert.Equal(t, "UTC", bogus.Timezone)
}

func TestDetectWithNilProbe(t *testing.T) {
	now := time.Date(2024, 1, 13, 10, 0, 0, 0, time.UTC)
	device, browser, temporal := Detect(nil, now)

	assert.Equal(t, model.DeviceDesktop, device.Type)
	assert.Equal(t, "", browser.Name)
	assert.True(t, temporal.IsWeekend)
}

func TestDetectUsesProbeSnapshot(t *testing.T) {
	probe := StaticProbe{UserAgent: uaIPhone, Timezone: "Europe/Berlin"}
	device, _, temporal := Detect(probe, time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC))

	assert.Equal(t, model.DeviceMobile, device.Type)
	assert.Equal(t, 9, temporal.LocalHour)
	assert.Equal(t, "morning", temporal.TimeOfDay)
}
