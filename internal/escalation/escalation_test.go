package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mandi-labs/onboard-cli/internal/model"
)

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) Schedule(ctx context.Context, req model.EscalationRequest) (*Booking, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Booking), args.Error(1)
}

var _ Scheduler = (*mockScheduler)(nil)

// escalatedSession has a validated email, an unvalidated phone, and the
// given risk score.
func escalatedSession(score float64) *model.Session {
	sess := model.NewSession("sess-1", "prod-1", time.Now())
	sess.Collected["email"] = "ravi@example.com"
	sess.Collected["phone"] = "12345"
	sess.Verdicts["email"] = model.ValidVerdict(map[string]any{"normalized": "ravi@example.com"})
	sess.Verdicts["phone"] = model.InvalidVerdict("Invalid phone number")
	sess.Assessment = &model.RiskAssessment{
		RiskScore:                  score,
		RequiresManualVerification: true,
		ComputedAt:                 time.Now(),
	}
	return sess
}

func TestRoute_SchedulesUrgentVerification(t *testing.T) {
	sched := &mockScheduler{}
	sched.On("Schedule", mock.Anything, mock.MatchedBy(func(req model.EscalationRequest) bool {
		return req.Priority == model.PriorityUrgent &&
			req.RiskScore == 72 &&
			req.Contacts.Email == "ravi@example.com" &&
			req.Contacts.Phone == ""
	})).Return(&Booking{Ref: "abc-xyz", URL: "https://calendly.com/d/abc-xyz", Minutes: 60}, nil).Once()

	r := New(sched)
	out := r.Route(context.Background(), escalatedSession(72))

	assert.Equal(t, model.PriorityUrgent, out.Priority)
	assert.True(t, out.Scheduled)
	assert.Equal(t, "abc-xyz", out.BookingRef)
	assert.Contains(t, out.Message, "https://calendly.com/d/abc-xyz")
	assert.Contains(t, out.Message, "High Risk Verification")
	assert.Contains(t, out.Message, "ravi@example.com")
	sched.AssertExpectations(t)
}

func TestRoute_FallbackOnSchedulerError(t *testing.T) {
	sched := &mockScheduler{}
	sched.On("Schedule", mock.Anything, mock.Anything).
		Return(nil, eris.New("calendly: status 503")).Once()

	r := New(sched)
	out := r.Route(context.Background(), escalatedSession(72))

	assert.Equal(t, model.PriorityUrgent, out.Priority)
	assert.False(t, out.Scheduled)
	assert.Empty(t, out.BookingRef)
	// The fallback quotes the urgent response window and the email on file.
	assert.Contains(t, out.Message, "2-4 hours")
	assert.Contains(t, out.Message, "ravi@example.com")
	assert.Contains(t, out.Message, "URGENT")
}

func TestRoute_NoValidatedContactsSkipsScheduler(t *testing.T) {
	sess := escalatedSession(60)
	sess.Verdicts["email"] = model.InvalidVerdict("Invalid email format")

	sched := &mockScheduler{}

	r := New(sched)
	out := r.Route(context.Background(), sess)

	assert.False(t, out.Scheduled)
	assert.Contains(t, out.Message, "valid email address or phone number")
	sched.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything)
}

func TestRoute_NilSchedulerUsesFallback(t *testing.T) {
	r := New(nil)
	out := r.Route(context.Background(), escalatedSession(30))

	assert.Equal(t, model.PriorityNormal, out.Priority)
	assert.False(t, out.Scheduled)
	assert.Contains(t, out.Message, "within 24 hours")
	// Phone never validated, so the fallback shows the raw value on file.
	assert.Contains(t, out.Message, "12345")
}

func TestRoute_PriorityBands(t *testing.T) {
	tests := []struct {
		score float64
		want  model.Priority
	}{
		{72, model.PriorityUrgent},
		{70, model.PriorityUrgent},
		{55, model.PriorityHigh},
		{50, model.PriorityHigh},
		{49, model.PriorityNormal},
		{0, model.PriorityNormal},
	}

	r := New(nil)
	for _, tt := range tests {
		out := r.Route(context.Background(), escalatedSession(tt.score))
		assert.Equal(t, tt.want, out.Priority, "score %.0f", tt.score)
	}
}

func TestRoute_NilAssessmentDefaultsToMediumRisk(t *testing.T) {
	sess := escalatedSession(0)
	sess.Assessment = nil

	r := New(nil)
	out := r.Route(context.Background(), sess)

	assert.Equal(t, model.PriorityHigh, out.Priority)
	assert.Contains(t, out.Message, "50.0/100")
}

func TestValidatedContacts(t *testing.T) {
	sess := model.NewSession("sess-2", "prod-2", time.Now())
	sess.Collected["email"] = "ravi@example.com"
	sess.Collected["phone"] = "9876543210"

	// No verdicts at all: presence is not enough.
	assert.False(t, validatedContacts(sess).HasAny())

	sess.Verdicts["phone"] = model.ValidVerdict(map[string]any{"normalized": "9876543210"})
	c := validatedContacts(sess)
	assert.Empty(t, c.Email)
	assert.Equal(t, "9876543210", c.Phone)

	sess.Verdicts["email"] = model.ValidVerdict(map[string]any{"normalized": "ravi@example.com"})
	c = validatedContacts(sess)
	assert.Equal(t, "ravi@example.com", c.Email)
}

func TestUrgencyNoteAndMeetingType(t *testing.T) {
	assert.Equal(t, "High risk - urgent verification required", urgencyNote(model.PriorityUrgent))
	assert.Equal(t, "Medium risk - priority verification needed", urgencyNote(model.PriorityHigh))
	assert.Equal(t, "Standard verification process", urgencyNote(model.PriorityNormal))

	assert.Equal(t, "High Risk Verification", meetingType(model.PriorityUrgent))
	assert.Equal(t, "Medium Risk Verification", meetingType(model.PriorityHigh))
	assert.Equal(t, "Standard Verification", meetingType(model.PriorityNormal))
}
