package escalation

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/mandi-labs/onboard-cli/internal/model"
	"github.com/mandi-labs/onboard-cli/pkg/calendly"
)

// CalendlyScheduler books verification meetings through the Calendly API.
// Every booking uses a single-use scheduling link against one configured
// event type; the meeting length is decided by the priority tier.
type CalendlyScheduler struct {
	client    calendly.Client
	eventType string
}

// NewCalendlyScheduler wires a Calendly client to the event type URI used
// for producer verification calls.
func NewCalendlyScheduler(client calendly.Client, eventType string) *CalendlyScheduler {
	return &CalendlyScheduler{client: client, eventType: eventType}
}

var _ Scheduler = (*CalendlyScheduler)(nil)

// Schedule creates a single-use booking link for the verification call.
func (s *CalendlyScheduler) Schedule(ctx context.Context, req model.EscalationRequest) (*Booking, error) {
	link, err := s.client.CreateSchedulingLink(ctx, calendly.SchedulingLinkRequest{
		Owner:         s.eventType,
		OwnerType:     "EventType",
		MaxEventCount: 1,
	})
	if err != nil {
		return nil, eris.Wrap(err, "escalation: create scheduling link")
	}

	return &Booking{
		Ref:     refFromURL(link.BookingURL),
		URL:     link.BookingURL,
		Minutes: req.Priority.MeetingMinutes(),
	}, nil
}

// refFromURL derives a short booking reference from the link's last path
// segment, falling back to the whole URL.
func refFromURL(bookingURL string) string {
	trimmed := strings.TrimRight(bookingURL, "/")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 && i+1 < len(trimmed) {
		return trimmed[i+1:]
	}
	return bookingURL
}
