package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnboardingStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status OnboardingStatus
		want   string
	}{
		{StatusStarted, "started"},
		{StatusInProgress, "in_progress"},
		{StatusPendingVerification, "pending_verification"},
		{StatusCompleted, "completed"},
		{StatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}

func TestOnboardingStatusTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status OnboardingStatus
		want   bool
	}{
		{StatusStarted, false},
		{StatusInProgress, false},
		{StatusPendingVerification, true},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.status.Terminal())
		})
	}
}

func TestSessionSetFieldResetsFailures(t *testing.T) {
	t.Parallel()

	s := NewSession("s1", "p1", time.Now())
	s.FailureCount = 2

	s.SetField("email", "a@b.in")

	assert.Equal(t, "a@b.in", s.Collected["email"])
	assert.Zero(t, s.FailureCount)
}

func TestSessionParkPending(t *testing.T) {
	t.Parallel()

	s := NewSession("s1", "p1", time.Now())
	s.SetField("gst_number", "27AAPFU0939F1ZV")
	s.FailureCount = 2

	s.ParkPending("pan_number", "not really a pan")

	assert.Equal(t, "not really a pan", s.Collected["pan_number_pending"])
	assert.Equal(t, "27AAPFU0939F1ZV", s.Collected["gst_number"], "real values are untouched")
	assert.Zero(t, s.FailureCount)
	assert.Equal(t, []string{"pan_number"}, s.PendingFields())
}

func TestSessionLastAssistantMessage(t *testing.T) {
	t.Parallel()

	s := NewSession("s1", "p1", time.Now())
	assert.Empty(t, s.LastAssistantMessage())

	now := time.Now()
	s.Append(RoleAssistant, "What is your GST number?", now)
	s.Append(RoleUser, "27AAPFU0939F1ZV", now.Add(time.Second))

	assert.Equal(t, "What is your GST number?", s.LastAssistantMessage())

	s.Append(RoleAssistant, "Thanks, and your PAN?", now.Add(2*time.Second))
	assert.Equal(t, "Thanks, and your PAN?", s.LastAssistantMessage())
}

func TestSessionSnapshot(t *testing.T) {
	t.Parallel()

	s := NewSession("s1", "p1", time.Now())
	s.Status = StatusInProgress
	s.CurrentField = "email"
	s.SetField("name", "Ravi Traders")
	s.Append(RoleAssistant, "What is your email?", time.Now())

	snap := s.Snapshot()
	assert.Equal(t, "s1", snap.SessionID)
	assert.Equal(t, "p1", snap.ProducerID)
	assert.Equal(t, StatusInProgress, snap.Status)
	assert.Equal(t, []string{"name"}, snap.Collected)
	assert.Equal(t, "email", snap.CurrentField)
	assert.Equal(t, "What is your email?", snap.Message)
	assert.Nil(t, snap.RiskScore, "no score before assessment")
	assert.Nil(t, snap.RequiresVerification)

	s.Assessment = &RiskAssessment{RiskScore: 42, IsComplete: true}
	snap = s.Snapshot()
	require.NotNil(t, snap.RiskScore)
	assert.InDelta(t, 42.0, *snap.RiskScore, 0.001)
	assert.True(t, snap.IsComplete)
}

func TestSessionExportRoundTripFields(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := NewSession("s1", "p1", now)
	s.Status = StatusCompleted
	s.SetField("name", "Ravi Traders")
	s.SetField("email", "ravi@example.in")
	s.Verdicts["email"] = ValidVerdict(nil)
	s.Append(RoleUser, "hello", now)

	rec := s.Export(now.Add(time.Minute))

	assert.Equal(t, s.ID, rec.SessionID)
	assert.Equal(t, s.Status, rec.Status)
	assert.Equal(t, s.Collected, rec.Collected)
	assert.Equal(t, s.Verdicts, rec.Verdicts)
	assert.Len(t, rec.Transcript, 1)
	assert.Equal(t, now.Add(time.Minute), rec.ExportedAt)
}

func TestFullRecordRestoreRebuildsSession(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := NewSession("s1", "p1", now)
	s.Status = StatusPendingVerification
	s.SetField("name", "Ravi Traders")
	s.ParkPending("gst_number", "don't have it yet")
	s.Verdicts["name"] = ValidVerdict(nil)
	s.Assessment = &RiskAssessment{RiskScore: 58, RequiresManualVerification: true}
	s.Append(RoleAssistant, "Our team will verify your details.", now)
	s.Version = 7

	rec := s.Export(now.Add(time.Minute))
	restored := rec.Restore(now.Add(time.Hour))

	assert.Equal(t, s.ID, restored.ID)
	assert.Equal(t, s.ProducerID, restored.ProducerID)
	assert.Equal(t, s.Status, restored.Status)
	assert.Equal(t, s.Collected, restored.Collected)
	assert.Equal(t, s.Verdicts, restored.Verdicts)
	assert.Equal(t, s.Transcript, restored.Transcript)
	assert.Equal(t, s.Assessment, restored.Assessment)
	assert.Equal(t, s.CreatedAt, restored.CreatedAt)
	assert.Equal(t, now.Add(time.Hour), restored.UpdatedAt)
	assert.Zero(t, restored.Version, "a restored row begins a new write history")
}

func TestFullRecordRestoreInitializesEmptyMaps(t *testing.T) {
	t.Parallel()

	rec := &FullRecord{SessionID: "s1", Status: StatusStarted}
	restored := rec.Restore(time.Now())
	assert.NotNil(t, restored.Collected)
	assert.NotNil(t, restored.Verdicts)
}
