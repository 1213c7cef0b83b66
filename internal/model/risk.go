package model

import "time"

// IssueKind classifies a validation issue by its origin.
type IssueKind string

const (
	IssueFormat       IssueKind = "format_failure"
	IssueManualReview IssueKind = "manual_review"
	IssueMissing      IssueKind = "missing_field"
	IssueInconsistent IssueKind = "inconsistent"
	IssueOther        IssueKind = "other"
)

// ValidationIssue is one problem found during all-data validation.
type ValidationIssue struct {
	Field       string    `json:"field"`
	Kind        IssueKind `json:"kind"`
	Description string    `json:"description"`
	Severity    float64   `json:"severity"` // 0.0..1.0
}

// RiskAssessment is the holistic judgment over a session's collected data.
// It is always derived fresh from the full session state, never updated
// incrementally.
type RiskAssessment struct {
	CompletenessPct            float64           `json:"completeness_percentage"`
	IsComplete                 bool              `json:"is_complete"`
	Issues                     []ValidationIssue `json:"validation_issues,omitempty"`
	RiskScore                  float64           `json:"risk_score"`
	RequiresManualVerification bool              `json:"requires_manual_verification"`
	Degraded                   bool              `json:"degraded,omitempty"`
	ComputedAt                 time.Time         `json:"computed_at"`
}
