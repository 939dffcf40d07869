package model

// SessionState is the aggregate for one session id. Metrics and Flags are
// derived by the session manager and never set by outside callers.
type SessionState struct {
	SessionID   string             `json:"sessionId"`
	UserID      string             `json:"userId,omitempty"`
	Events      []BehaviorEvent    `json:"events"`
	Adaptations []AdaptationRecord `json:"adaptations"`
	Profile     *UserProfile       `json:"profile,omitempty"`
	Context     Context            `json:"context"`
	Metrics     Metrics            `json:"metrics"`
	Flags       Flags              `json:"flags"`
}

type Context struct {
	Device     DeviceContext     `json:"device"`
	Browser    BrowserContext    `json:"browser"`
	Temporal   TemporalContext   `json:"temporal"`
	Behavioral BehavioralContext `json:"behavioral"`
	Session    SessionContext    `json:"session"`
}

// Device types
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
)

type DeviceContext struct {
	Type           string `json:"type"`
	IsTouch        bool   `json:"isTouch"`
	ScreenWidth    int    `json:"screenWidth,omitempty"`
	ScreenHeight   int    `json:"screenHeight,omitempty"`
	OS             string `json:"os,omitempty"`
	ConnectionType string `json:"connectionType,omitempty"`
	SlowConnection bool   `json:"slowConnection"`
}

// IsMobile reports whether the device is a phone-sized touch device
func (d DeviceContext) IsMobile() bool {
	return d.Type == DeviceMobile
}

type BrowserContext struct {
	Name     string `json:"name,omitempty"`
	Version  string `json:"version,omitempty"`
	Engine   string `json:"engine,omitempty"`
	Language string `json:"language,omitempty"`
}

type TemporalContext struct {
	Timezone        string `json:"timezone,omitempty"`
	LocalHour       int    `json:"localHour"`
	DayOfWeek       string `json:"dayOfWeek,omitempty"`
	IsWeekend       bool   `json:"isWeekend"`
	IsBusinessHours bool   `json:"isBusinessHours"`
	TimeOfDay       string `json:"timeOfDay,omitempty"`
}

// BehavioralContext holds rolling estimates of how the visitor behaves.
// Rates and levels are in [0,1]; Hesitation is in milliseconds.
type BehavioralContext struct {
	TypingSpeed      float64 `json:"typingSpeed"`
	ErrorRate        float64 `json:"errorRate"`
	ConfidenceLevel  float64 `json:"confidenceLevel"`
	Hesitation       float64 `json:"hesitation"`
	Precision        float64 `json:"precision"`
	HelpSeeking      float64 `json:"helpSeeking"`
	ScrollFrequency  float64 `json:"scrollFrequency"`
	TypingConfidence float64 `json:"typingConfidence"`
	RecentEngagement float64 `json:"recentEngagement"`

	PriorErrorRate float64 `json:"priorErrorRate"`
	KeyPresses     int     `json:"keyPresses"`
	Corrections    int     `json:"corrections"`
	FieldChanges   int     `json:"fieldChanges"`
	InvalidChanges int     `json:"invalidChanges"`
	Scrolls        int     `json:"scrolls"`
	LastKeyPressAt int64   `json:"lastKeyPressAt,omitempty"`
	LastFocusAt    int64   `json:"lastFocusAt,omitempty"`
	AwaitingInput  bool    `json:"awaitingInput"`
}

type SessionContext struct {
	FormID            string   `json:"formId,omitempty"`
	URL               string   `json:"url,omitempty"`
	StartTime         int64    `json:"startTime"`
	LastActivity      int64    `json:"lastActivity"`
	CurrentField      string   `json:"currentField,omitempty"`
	FieldsTouched     []string `json:"fieldsTouched,omitempty"`
	FocusCount        int      `json:"focusCount"`
	VisibilityChanges int      `json:"visibilityChanges"`
	Submissions       int      `json:"submissions"`
	FailedSubmissions int      `json:"failedSubmissions"`
}

type Metrics struct {
	TotalEvents          int     `json:"totalEvents"`
	TotalAdaptations     int     `json:"totalAdaptations"`
	SessionDuration      int64   `json:"sessionDuration"`
	EngagementScore      float64 `json:"engagementScore"`
	ConversionLikelihood float64 `json:"conversionLikelihood"`
}

type Flags struct {
	IsReturningUser    bool `json:"isReturningUser"`
	IsHighValueSession bool `json:"isHighValueSession"`
	NeedsAssistance    bool `json:"needsAssistance"`
	RiskOfAbandonment  bool `json:"riskOfAbandonment"`
}

// Clone returns a deep copy that shares no slices or maps with s
func (s *SessionState) Clone() SessionState {
	out := *s
	out.Events = make([]BehaviorEvent, len(s.Events))
	for i, e := range s.Events {
		out.Events[i] = e
		if e.Data != nil {
			data := make(map[string]interface{}, len(e.Data))
			for k, v := range e.Data {
				data[k] = v
			}
			out.Events[i].Data = data
		}
	}
	out.Adaptations = make([]AdaptationRecord, len(s.Adaptations))
	for i, r := range s.Adaptations {
		out.Adaptations[i] = r
		if r.Adaptation.Metadata != nil {
			md := make(map[string]string, len(r.Adaptation.Metadata))
			for k, v := range r.Adaptation.Metadata {
				md[k] = v
			}
			out.Adaptations[i].Adaptation.Metadata = md
		}
	}
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	out.Context.Session.FieldsTouched = append([]string(nil), s.Context.Session.FieldsTouched...)
	return out
}

// CountEvents returns how many events of type t the session holds
func (s *SessionState) CountEvents(t EventType) int {
	n := 0
	for i := range s.Events {
		if s.Events[i].EventType == t {
			n++
		}
	}
	return n
}

// EventsForForm returns the events that belong to formID, in order
func (s *SessionState) EventsForForm(formID string) []BehaviorEvent {
	var out []BehaviorEvent
	for _, e := range s.Events {
		if e.FormID == formID {
			out = append(out, e)
		}
	}
	return out
}
