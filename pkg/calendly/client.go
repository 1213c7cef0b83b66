// Package calendly provides a client for the Calendly scheduling API.
package calendly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Calendly operations used for verification scheduling.
type Client interface {
	// CreateSchedulingLink creates a single-use booking link for an event type.
	CreateSchedulingLink(ctx context.Context, req SchedulingLinkRequest) (*SchedulingLink, error)
	// AvailableTimes lists open slots for an event type inside a window.
	// Calendly caps the window at seven days.
	AvailableTimes(ctx context.Context, eventType string, from, to time.Time) ([]TimeSlot, error)
}

// SchedulingLinkRequest is the payload for creating a scheduling link.
type SchedulingLinkRequest struct {
	// Owner is the event type URI the link books against.
	Owner string `json:"owner"`
	// OwnerType is always "EventType" for event-type-owned links.
	OwnerType string `json:"owner_type"`
	// MaxEventCount is how many bookings the link allows before expiring.
	MaxEventCount int `json:"max_event_count"`
}

// SchedulingLink is a created single-use booking link.
type SchedulingLink struct {
	BookingURL string `json:"booking_url"`
	Owner      string `json:"owner"`
	OwnerType  string `json:"owner_type"`
}

type schedulingLinkResponse struct {
	Resource SchedulingLink `json:"resource"`
}

// TimeSlot is one open booking slot for an event type.
type TimeSlot struct {
	Status            string    `json:"status"`
	StartTime         time.Time `json:"start_time"`
	SchedulingURL     string    `json:"scheduling_url"`
	InviteesRemaining int       `json:"invitees_remaining"`
}

type availableTimesResponse struct {
	Collection []TimeSlot `json:"collection"`
}

// Option configures the Calendly client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Calendly API client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: "https://api.calendly.com",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503). The request body is rebuilt
// from GetBody on each attempt so POSTs survive the retry.
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, 0, eris.Wrap(err, "calendly: rebuild request body")
			}
			retryReq.Body = body
		}

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "calendly: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("calendly: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) CreateSchedulingLink(ctx context.Context, linkReq SchedulingLinkRequest) (*SchedulingLink, error) {
	if linkReq.OwnerType == "" {
		linkReq.OwnerType = "EventType"
	}
	if linkReq.MaxEventCount == 0 {
		linkReq.MaxEventCount = 1
	}

	payload, err := json.Marshal(linkReq)
	if err != nil {
		return nil, eris.Wrap(err, "calendly: marshal scheduling link request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scheduling_links", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "calendly: create request")
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "calendly: request failed")
	}

	if statusCode != http.StatusCreated && statusCode != http.StatusOK {
		return nil, eris.Errorf("calendly: unexpected status %d: %s", statusCode, string(body))
	}

	var result schedulingLinkResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "calendly: unmarshal response")
	}
	if result.Resource.BookingURL == "" {
		return nil, eris.New("calendly: response missing booking_url")
	}

	return &result.Resource, nil
}

func (c *httpClient) AvailableTimes(ctx context.Context, eventType string, from, to time.Time) ([]TimeSlot, error) {
	query := url.Values{}
	query.Set("event_type", eventType)
	query.Set("start_time", from.UTC().Format(time.RFC3339))
	query.Set("end_time", to.UTC().Format(time.RFC3339))

	reqURL := fmt.Sprintf("%s/event_type_available_times?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "calendly: create availability request")
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "calendly: availability request failed")
	}

	if statusCode != http.StatusOK {
		return nil, eris.Errorf("calendly: availability unexpected status %d: %s", statusCode, string(body))
	}

	var result availableTimesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "calendly: unmarshal availability response")
	}

	return result.Collection, nil
}
