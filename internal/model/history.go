package model

// MaxSessionSummaries bounds UserHistory.Sessions
const MaxSessionSummaries = 10

// UserHistory aggregates behavior across all sessions of one user id
type UserHistory struct {
	UserID               string           `json:"userId"`
	TypingSpeed          float64          `json:"typingSpeed"`
	ErrorRate            float64          `json:"errorRate"`
	ConfidenceScore      float64          `json:"confidenceScore"`
	Hesitation           float64          `json:"hesitation"`
	Precision            float64          `json:"precision"`
	HelpSeekingFrequency float64          `json:"helpSeekingFrequency"`
	ScrollFrequency      float64          `json:"scrollFrequency"`
	Sessions             []SessionSummary `json:"sessions"`
	TotalSessions        int              `json:"totalSessions"`
	LastVisit            int64            `json:"lastVisit"`
}

// SessionSummary is the per-session entry kept in UserHistory
type SessionSummary struct {
	SessionID            string  `json:"sessionId"`
	FormID               string  `json:"formId,omitempty"`
	StartTime            int64   `json:"startTime"`
	Duration             int64   `json:"duration"`
	TotalEvents          int     `json:"totalEvents"`
	TotalAdaptations     int     `json:"totalAdaptations"`
	EngagementScore      float64 `json:"engagementScore"`
	ConversionLikelihood float64 `json:"conversionLikelihood"`
	Submitted            bool    `json:"submitted"`

	TypingSpeed     float64 `json:"typingSpeed"`
	ErrorRate       float64 `json:"errorRate"`
	ConfidenceLevel float64 `json:"confidenceLevel"`
	Hesitation      float64 `json:"hesitation"`
	Precision       float64 `json:"precision"`
	HelpSeeking     float64 `json:"helpSeeking"`
	ScrollFrequency float64 `json:"scrollFrequency"`
}

// Upsert replaces the summary with the same session id, or appends it and
// trims to the last MaxSessionSummaries entries. The running averages are
// recomputed from the retained summaries. It reports whether a new session
// was added.
func (h *UserHistory) Upsert(s SessionSummary) bool {
	added := true
	for i := range h.Sessions {
		if h.Sessions[i].SessionID == s.SessionID {
			h.Sessions[i] = s
			added = false
			break
		}
	}
	if added {
		h.Sessions = append(h.Sessions, s)
		if len(h.Sessions) > MaxSessionSummaries {
			h.Sessions = h.Sessions[len(h.Sessions)-MaxSessionSummaries:]
		}
		h.TotalSessions++
	}
	h.recompute()
	return added
}

// HasSession reports whether sessionID is among the retained summaries
func (h *UserHistory) HasSession(sessionID string) bool {
	for i := range h.Sessions {
		if h.Sessions[i].SessionID == sessionID {
			return true
		}
	}
	return false
}

func (h *UserHistory) recompute() {
	n := float64(len(h.Sessions))
	if n == 0 {
		return
	}
	var typing, errRate, conf, hes, prec, help, scroll float64
	for _, s := range h.Sessions {
		typing += s.TypingSpeed
		errRate += s.ErrorRate
		conf += s.ConfidenceLevel
		hes += s.Hesitation
		prec += s.Precision
		help += s.HelpSeeking
		scroll += s.ScrollFrequency
	}
	h.TypingSpeed = typing / n
	h.ErrorRate = errRate / n
	h.ConfidenceScore = conf / n
	h.Hesitation = hes / n
	h.Precision = prec / n
	h.HelpSeekingFrequency = help / n
	h.ScrollFrequency = scroll / n
}
