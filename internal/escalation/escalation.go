// Package escalation routes risk-flagged sessions to manual verification.
//
// Routing never fails from the counterpart's point of view: a scheduling
// attempt that errors degrades to a deterministic message quoting the
// expected response window for the priority tier, and a session without a
// single validated contact channel gets asked for one instead of a broken
// booking link.
package escalation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mandi-labs/onboard-cli/internal/model"
)

// Booking is a successfully scheduled verification meeting.
type Booking struct {
	Ref     string
	URL     string
	Minutes int
}

// Scheduler books verification meetings with the external calendar
// collaborator.
type Scheduler interface {
	Schedule(ctx context.Context, req model.EscalationRequest) (*Booking, error)
}

// Router turns a scored session into a verification outcome.
type Router struct {
	scheduler Scheduler
}

// New builds a Router. A nil scheduler is allowed and routes every session
// through the fallback message path.
func New(scheduler Scheduler) *Router {
	return &Router{scheduler: scheduler}
}

// Route determines the priority tier for the session's risk score and
// attempts to schedule a verification meeting. The returned outcome always
// carries a counterpart-facing message.
func (r *Router) Route(ctx context.Context, sess *model.Session) model.EscalationOutcome {
	score := 50.0
	if sess.Assessment != nil {
		score = sess.Assessment.RiskScore
	}
	priority := model.PriorityForScore(score)
	contacts := validatedContacts(sess)

	if !contacts.HasAny() {
		zap.L().Info("escalation: no validated contact channel",
			zap.String("session_id", sess.ID),
			zap.String("priority", string(priority)),
		)
		return model.EscalationOutcome{
			Priority: priority,
			Message:  contactNeededMessage(score),
		}
	}

	if r.scheduler != nil {
		booking, err := r.scheduler.Schedule(ctx, model.EscalationRequest{
			SessionID:  sess.ID,
			ProducerID: sess.ProducerID,
			Priority:   priority,
			RiskScore:  score,
			Contacts:   contacts,
			Producer:   sess.Collected,
		})
		if err == nil && booking != nil && booking.URL != "" {
			zap.L().Info("escalation: verification scheduled",
				zap.String("session_id", sess.ID),
				zap.String("priority", string(priority)),
				zap.String("booking_ref", booking.Ref),
			)
			return model.EscalationOutcome{
				Priority:   priority,
				Scheduled:  true,
				BookingRef: booking.Ref,
				BookingURL: booking.URL,
				Message:    scheduledMessage(score, priority, booking.URL, contacts),
			}
		}
		zap.L().Warn("escalation: scheduler unavailable, using fallback message",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}

	return model.EscalationOutcome{
		Priority: priority,
		Message:  fallbackMessage(score, priority, sess.Collected),
	}
}

// validatedContacts returns the contact channels whose collected values
// passed deterministic validation. Presence alone is not enough.
func validatedContacts(sess *model.Session) model.ContactChannels {
	var c model.ContactChannels
	if v := sess.Verdicts["email"]; v != nil && v.Valid && sess.Collected["email"] != "" {
		c.Email = sess.Collected["email"]
	}
	if v := sess.Verdicts["phone"]; v != nil && v.Valid && sess.Collected["phone"] != "" {
		c.Phone = sess.Collected["phone"]
	}
	return c
}

// urgencyNote is the one-line assessment summary quoted in the scheduling
// message.
func urgencyNote(p model.Priority) string {
	switch p {
	case model.PriorityUrgent:
		return "High risk - urgent verification required"
	case model.PriorityHigh:
		return "Medium risk - priority verification needed"
	default:
		return "Standard verification process"
	}
}

// meetingType names the verification call booked for the tier.
func meetingType(p model.Priority) string {
	switch p {
	case model.PriorityUrgent:
		return "High Risk Verification"
	case model.PriorityHigh:
		return "Medium Risk Verification"
	default:
		return "Standard Verification"
	}
}

func contactNeededMessage(score float64) string {
	return fmt.Sprintf(
		"Your application requires manual verification based on our risk assessment (score: %.1f/100).\n\n"+
			"However, we need valid contact information to schedule a verification meeting. "+
			"Please provide a valid email address or phone number.\n\n"+
			"Once you update your contact details, our team will reach out to schedule the verification.",
		score)
}

func scheduledMessage(score float64, priority model.Priority, bookingURL string, contacts model.ContactChannels) string {
	confirmAt := contacts.Email
	if confirmAt == "" {
		confirmAt = contacts.Phone
	}
	return fmt.Sprintf(
		"Thank you for providing your information!\n\n"+
			"Based on our initial review:\n"+
			"- Risk score: %.1f/100\n"+
			"- Assessment: %s\n"+
			"- Verification type: %s\n\n"+
			"To complete your verification, please schedule a meeting using this link:\n%s\n\n"+
			"Available time slots have been prepared based on the urgency of your application. "+
			"You'll receive a confirmation at %s once you book a slot.",
		score, urgencyNote(priority), meetingType(priority), bookingURL, confirmAt)
}

func fallbackMessage(score float64, priority model.Priority, collected map[string]string) string {
	return fmt.Sprintf(
		"Thank you for providing your information!\n\n"+
			"Based on our initial review (risk score: %.1f/100), your application requires manual verification.\n\n"+
			"Priority: %s\n"+
			"Expected review time: %s\n\n"+
			"Our verification team will contact you at:\n"+
			"- Email: %s\n"+
			"- Phone: %s\n\n"+
			"Please make sure you're available during business hours for the verification call.",
		score,
		strings.ToUpper(string(priority)),
		priority.ResponseWindow(),
		orNotProvided(collected["email"]),
		orNotProvided(collected["phone"]))
}

func orNotProvided(v string) string {
	if v == "" {
		return "Not provided"
	}
	return v
}
