package model

// ValidationError is returned for a malformed event. Only the offending
// event is rejected; the rest of a batch is still processed.
type ValidationError struct {
	EventID string
	Fields  []string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.EventID != "" {
		return "validation error for event " + e.EventID + ": " + e.Reason
	}
	return "validation error: " + e.Reason
}
