package model

// Priority is the verification urgency tier for an escalated session.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// PriorityForScore maps a risk score onto its priority band. Bands are
// exclusive and evaluated high to low.
func PriorityForScore(score float64) Priority {
	switch {
	case score >= 70:
		return PriorityUrgent
	case score >= 50:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// ResponseWindow returns the expected-response-time band quoted to the
// producer when scheduling is unavailable.
func (p Priority) ResponseWindow() string {
	switch p {
	case PriorityUrgent:
		return "2-4 hours"
	case PriorityHigh:
		return "4-8 hours"
	default:
		return "within 24 hours"
	}
}

// MeetingMinutes returns the verification call length for the tier.
func (p Priority) MeetingMinutes() int {
	switch p {
	case PriorityUrgent:
		return 60
	case PriorityHigh:
		return 45
	default:
		return 30
	}
}

// ContactChannels carries the validated contact points for a producer.
// A channel is set only when its value passed deterministic validation.
type ContactChannels struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// HasAny reports whether at least one validated channel is available.
func (c ContactChannels) HasAny() bool {
	return c.Email != "" || c.Phone != ""
}

// EscalationRequest asks the scheduling collaborator for a verification
// meeting. Never persisted.
type EscalationRequest struct {
	SessionID  string          `json:"session_id"`
	ProducerID string          `json:"producer_id"`
	Priority   Priority        `json:"priority"`
	RiskScore  float64         `json:"risk_score"`
	Contacts   ContactChannels `json:"contacts"`
	Producer   map[string]string `json:"producer,omitempty"`
}

// EscalationOutcome is what the producer is told about verification.
// Message is always populated, scheduled or not.
type EscalationOutcome struct {
	Priority   Priority `json:"priority"`
	Scheduled  bool     `json:"scheduled"`
	BookingRef string   `json:"booking_ref,omitempty"`
	BookingURL string   `json:"booking_url,omitempty"`
	Message    string   `json:"message"`
}
