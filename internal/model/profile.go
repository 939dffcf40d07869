package model

// UserProfile is the coarse classification of the visitor for one session
type UserProfile struct {
	UserType        string  `json:"userType"`
	TypingSpeed     float64 `json:"typingSpeed"`
	NavigationStyle string  `json:"navigationStyle"`
	Confidence      float64 `json:"confidence"`
	DeviceType      string  `json:"deviceType,omitempty"`
	ClassifiedAt    int64   `json:"classifiedAt"`
}

// Priority of a recommendation
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

type Recommendation struct {
	Type       AdaptationType `json:"type"`
	Priority   string         `json:"priority"`
	Confidence float64        `json:"confidence"`
	Reason     string         `json:"reason"`
}

type Insight struct {
	Type       string  `json:"type"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
	Actionable bool    `json:"actionable"`
}

type Pattern struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Confidence  float64                `json:"confidence"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// Severity of a risk factor
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

type RiskFactor struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type Opportunity struct {
	Type       string         `json:"type"`
	Message    string         `json:"message"`
	Suggestion AdaptationType `json:"suggestion,omitempty"`
}

// EnhancedProfile is the read model served to dashboards
type EnhancedProfile struct {
	SessionID     string            `json:"sessionId"`
	UserID        string            `json:"userId,omitempty"`
	Profile       *UserProfile      `json:"profile,omitempty"`
	Metrics       Metrics           `json:"metrics"`
	Behavioral    BehavioralContext `json:"behavioral"`
	Device        DeviceContext     `json:"device"`
	Insights      []Insight         `json:"insights"`
	Patterns      []Pattern         `json:"patterns"`
	RiskFactors   []RiskFactor      `json:"riskFactors"`
	Opportunities []Opportunity     `json:"opportunities"`
	Flags         Flags             `json:"flags"`
}
