package model

import "time"

// ReviewItem is an escalated session queued for human verification
// follow-up. Items are pushed to external review boards by the sync
// command; a sync target never sees the same item twice.
type ReviewItem struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	ProducerID string            `json:"producer_id"`
	Priority   Priority          `json:"priority"`
	RiskScore  float64           `json:"risk_score"`
	Issues     []ValidationIssue `json:"issues,omitempty"`
	Snapshot   map[string]string `json:"snapshot"`
	CreatedAt  time.Time         `json:"created_at"`
}
