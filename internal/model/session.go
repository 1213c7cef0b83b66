package model

import (
	"sort"
	"strings"
	"time"
)

// OnboardingStatus represents the lifecycle state of an onboarding session.
type OnboardingStatus string

const (
	StatusStarted             OnboardingStatus = "started"
	StatusInProgress          OnboardingStatus = "in_progress"
	StatusPendingVerification OnboardingStatus = "pending_verification"
	StatusCompleted           OnboardingStatus = "completed"
	StatusFailed              OnboardingStatus = "failed"
)

// Terminal reports whether no further turns are accepted in this status.
func (s OnboardingStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPendingVerification, StatusFailed:
		return true
	}
	return false
}

// Role tags a transcript entry as counterpart- or system-originated.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptEntry is one turn of the onboarding conversation.
type TranscriptEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// PendingSuffix marks a collected key holding a raw answer retained for
// manual review after repeated rejection. A pending key never shadows a
// real field value.
const PendingSuffix = "_pending"

// Session is one end-to-end data-collection case for a single producer.
// It is mutated only by the onboarding engine, one turn at a time.
type Session struct {
	ID           string              `json:"id"`
	ProducerID   string              `json:"producer_id"`
	Status       OnboardingStatus    `json:"status"`
	Transcript   []TranscriptEntry   `json:"transcript"`
	Collected    map[string]string   `json:"collected"`
	Verdicts     map[string]*Verdict `json:"verdicts"`
	CurrentField string              `json:"current_field,omitempty"`
	FailureCount int                 `json:"failure_count"`
	Attempts     int                 `json:"attempts"`
	Assessment   *RiskAssessment     `json:"assessment,omitempty"`
	Version      int64               `json:"version"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// NewSession creates a session in the started state with empty collections.
func NewSession(id, producerID string, now time.Time) *Session {
	return &Session{
		ID:         id,
		ProducerID: producerID,
		Status:     StatusStarted,
		Collected:  make(map[string]string),
		Verdicts:   make(map[string]*Verdict),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Append records one transcript entry.
func (s *Session) Append(role Role, content string, at time.Time) {
	s.Transcript = append(s.Transcript, TranscriptEntry{Role: role, Content: content, Timestamp: at})
}

// LastAssistantMessage returns the most recent system-originated turn, or "".
func (s *Session) LastAssistantMessage() string {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Role == RoleAssistant {
			return s.Transcript[i].Content
		}
	}
	return ""
}

// CollectedFields returns the collected field names in sorted order.
func (s *Session) CollectedFields() []string {
	names := make([]string, 0, len(s.Collected))
	for k := range s.Collected {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// PendingFields returns the fields parked for manual review, without the
// pending suffix, in sorted order.
func (s *Session) PendingFields() []string {
	var fields []string
	for k := range s.Collected {
		if strings.HasSuffix(k, PendingSuffix) {
			fields = append(fields, strings.TrimSuffix(k, PendingSuffix))
		}
	}
	sort.Strings(fields)
	return fields
}

// SetField stores an accepted value and resets the failure counter.
func (s *Session) SetField(field, value string) {
	s.Collected[field] = value
	s.FailureCount = 0
}

// ParkPending retains a raw answer under the pending key for field and
// resets the failure counter. An existing real value is never overwritten.
func (s *Session) ParkPending(field, raw string) {
	s.Collected[field+PendingSuffix] = raw
	s.FailureCount = 0
}

// Snapshot derives the externally visible view of the session.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID:    s.ID,
		ProducerID:   s.ProducerID,
		Status:       s.Status,
		Message:      s.LastAssistantMessage(),
		Collected:    s.CollectedFields(),
		CurrentField: s.CurrentField,
	}
	if s.Assessment != nil {
		snap.IsComplete = s.Assessment.IsComplete
		score := s.Assessment.RiskScore
		snap.RiskScore = &score
		req := s.Assessment.RequiresManualVerification
		snap.RequiresVerification = &req
	}
	return snap
}

// Export produces the full serializable record of the session.
func (s *Session) Export(now time.Time) FullRecord {
	return FullRecord{
		SessionID:  s.ID,
		ProducerID: s.ProducerID,
		Status:     s.Status,
		Collected:  s.Collected,
		Verdicts:   s.Verdicts,
		Transcript: s.Transcript,
		Assessment: s.Assessment,
		CreatedAt:  s.CreatedAt,
		ExportedAt: now,
	}
}

// Snapshot is the per-turn view returned to the transport layer.
type Snapshot struct {
	SessionID            string           `json:"session_id"`
	ProducerID           string           `json:"producer_id"`
	Status               OnboardingStatus `json:"status"`
	Message              string           `json:"message"`
	Collected            []string         `json:"collected_fields"`
	CurrentField         string           `json:"current_field,omitempty"`
	IsComplete           bool             `json:"is_complete"`
	RiskScore            *float64         `json:"risk_score,omitempty"`
	RequiresVerification *bool            `json:"requires_verification,omitempty"`
}

// FullRecord is the exportable form of a session. Re-importing a record
// reconstructs an identical session apart from the version counter.
type FullRecord struct {
	SessionID  string              `json:"session_id"`
	ProducerID string              `json:"producer_id"`
	Status     OnboardingStatus    `json:"status"`
	Collected  map[string]string   `json:"collected_data"`
	Verdicts   map[string]*Verdict `json:"validation_results,omitempty"`
	Transcript []TranscriptEntry   `json:"conversation_history"`
	Assessment *RiskAssessment     `json:"risk_assessment,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	ExportedAt time.Time           `json:"exported_at"`
}

// Restore reconstructs the session a record was exported from. Collected
// data, verdicts, transcript, assessment, and status carry over unchanged;
// the version counter restarts because the restored row begins a new write
// history.
func (r *FullRecord) Restore(now time.Time) *Session {
	sess := &Session{
		ID:         r.SessionID,
		ProducerID: r.ProducerID,
		Status:     r.Status,
		Transcript: r.Transcript,
		Collected:  r.Collected,
		Verdicts:   r.Verdicts,
		Assessment: r.Assessment,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  now,
	}
	if sess.Collected == nil {
		sess.Collected = make(map[string]string)
	}
	if sess.Verdicts == nil {
		sess.Verdicts = make(map[string]*Verdict)
	}
	return sess
}
