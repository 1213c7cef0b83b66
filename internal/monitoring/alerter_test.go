package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandi-labs/onboard-cli/internal/config"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		StalledThreshold: 5,
		BacklogThreshold: 20,
	})

	snap := &SweepSnapshot{
		ActiveSessions:    8,
		Idle:              make([]IdleSession, 2),
		ReviewBacklog:     10,
		IdleThresholdMins: 30,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_StalledSessions(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		StalledThreshold: 2,
		BacklogThreshold: 20,
	})

	snap := &SweepSnapshot{
		ActiveSessions:    6,
		Idle:              make([]IdleSession, 3),
		OldestIdleMins:    95,
		IdleThresholdMins: 30,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStalledSessions, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "3 onboarding session(s)")
	assert.Contains(t, alerts[0].Message, "oldest 95m")
}

func TestAlerter_Evaluate_ReviewBacklog(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		StalledThreshold: 5,
		BacklogThreshold: 5,
	})

	snap := &SweepSnapshot{
		ReviewBacklog: 12,
		PendingReview: 12,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertReviewBacklog, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "12 item(s)")
}

func TestAlerter_Evaluate_FailedSessions(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		StalledThreshold: 5,
		BacklogThreshold: 20,
	})

	snap := &SweepSnapshot{
		FailedSessions: 2,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFailedSessions, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "2 onboarding session(s) in failed state")
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		StalledThreshold: 2,
		BacklogThreshold: 5,
	})

	snap := &SweepSnapshot{
		ActiveSessions:    10,
		Idle:              make([]IdleSession, 4),
		OldestIdleMins:    120,
		ReviewBacklog:     9,
		FailedSessions:    1,
		IdleThresholdMins: 30,
	}

	alerts := a.Evaluate(snap)
	assert.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, alert := range alerts {
		types[alert.Type] = true
	}
	assert.True(t, types[AlertStalledSessions])
	assert.True(t, types[AlertReviewBacklog])
	assert.True(t, types[AlertFailedSessions])
}

func TestAlerter_Evaluate_ZeroStalledThreshold(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		StalledThreshold: 0, // disabled
	})

	snap := &SweepSnapshot{
		Idle:              make([]IdleSession, 10),
		IdleThresholdMins: 30,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitorConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertStalledSessions, Severity: "high", Message: "test alert 1"},
		{Type: AlertReviewBacklog, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		WebhookURL: "",
	})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertStalledSessions, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		WebhookURL: "http://example.com",
	})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitorConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertStalledSessions, Message: "test"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 0, sent)
}
