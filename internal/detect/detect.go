// Package detect derives device, browser and temporal context from an
// environment snapshot. All detectors are pure functions.
package detect

import (
	"strings"
	"time"

	"github.com/mssola/useragent"

	"github.com/gosight/formsight/internal/model"
)

// Environment is a snapshot of what the capture layer knows about the
// visitor's runtime, taken once when a session starts.
type Environment struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	ScreenWidth    int
	ScreenHeight   int
	TouchPoints    int
	ConnectionType string
	Downlink       float64
	Language       string
	Timezone       string
	Now            time.Time
}

// EnvironmentProbe supplies the environment snapshot for a new session
type EnvironmentProbe interface {
	Snapshot() Environment
}

// StaticProbe returns a fixed snapshot
type StaticProbe Environment

func (p StaticProbe) Snapshot() Environment {
	return Environment(p)
}

const (
	mobileMaxWidth = 768
	tabletMaxWidth = 1024
)

var slowConnections = map[string]bool{
	"slow-2g": true,
	"2g":      true,
	"3g":      true,
}

// DetectDevice classifies the device from the user agent, viewport and
// touch capability
func DetectDevice(env Environment) model.DeviceContext {
	dc := model.DeviceContext{
		Type:           model.DeviceDesktop,
		IsTouch:        env.TouchPoints > 0,
		ScreenWidth:    env.ScreenWidth,
		ScreenHeight:   env.ScreenHeight,
		ConnectionType: env.ConnectionType,
		SlowConnection: slowConnections[strings.ToLower(env.ConnectionType)] || (env.Downlink > 0 && env.Downlink < 1.5),
	}

	width := env.ViewportWidth
	if width == 0 {
		width = env.ScreenWidth
	}

	if env.UserAgent != "" {
		ua := useragent.New(env.UserAgent)
		dc.OS = ua.OS()
		switch {
		case ua.Bot():
			dc.Type = model.DeviceBot
			return dc
		case isTabletUA(env.UserAgent):
			dc.Type = model.DeviceTablet
			dc.IsTouch = true
			return dc
		case ua.Mobile():
			dc.Type = model.DeviceMobile
			dc.IsTouch = true
			return dc
		}
	}

	if dc.IsTouch && width > 0 {
		switch {
		case width < mobileMaxWidth:
			dc.Type = model.DeviceMobile
		case width <= tabletMaxWidth:
			dc.Type = model.DeviceTablet
		}
	}
	return dc
}

func isTabletUA(ua string) bool {
	lower := strings.ToLower(ua)
	if strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet") {
		return true
	}
	// Android tablets omit the "Mobile" token
	return strings.Contains(lower, "android") && !strings.Contains(lower, "mobile")
}

// DetectBrowser extracts browser name, version and engine
func DetectBrowser(env Environment) model.BrowserContext {
	bc := model.BrowserContext{Language: env.Language}
	if env.UserAgent == "" {
		return bc
	}
	ua := useragent.New(env.UserAgent)
	bc.Name, bc.Version = ua.Browser()
	bc.Engine, _ = ua.Engine()
	return bc
}

// DetectTemporal places now in the visitor's timezone. Unknown timezones
// fall back to UTC.
func DetectTemporal(now time.Time, timezone string) model.TemporalContext {
	loc := time.UTC
	if timezone != "" {
		if l, err := time.LoadLocation(timezone); err == nil {
			loc = l
		} else {
			timezone = "UTC"
		}
	} else {
		timezone = "UTC"
	}

	local := now.In(loc)
	hour := local.Hour()
	weekday := local.Weekday()
	weekend := weekday == time.Saturday || weekday == time.Sunday

	return model.TemporalContext{
		Timezone:        timezone,
		LocalHour:       hour,
		DayOfWeek:       strings.ToLower(weekday.String()),
		IsWeekend:       weekend,
		IsBusinessHours: !weekend && hour >= 9 && hour < 17,
		TimeOfDay:       timeOfDay(hour),
	}
}

func timeOfDay(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 22:
		return "evening"
	default:
		return "night"
	}
}

// Detect runs every detector against the probe snapshot. A nil probe yields
// desktop defaults.
func Detect(probe EnvironmentProbe, now time.Time) (model.DeviceContext, model.BrowserContext, model.TemporalContext) {
	var env Environment
	if probe != nil {
		env = probe.Snapshot()
	}
	if env.Now.IsZero() {
		env.Now = now
	}
	return DetectDevice(env), DetectBrowser(env), DetectTemporal(env.Now, env.Timezone)
}
