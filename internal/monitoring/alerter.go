package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mandi-labs/onboard-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertStalledSessions AlertType = "stalled_sessions"
	AlertReviewBacklog   AlertType = "review_backlog"
	AlertFailedSessions  AlertType = "failed_sessions"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a SweepSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitorConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitor config.
func NewAlerter(cfg config.MonitorConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *SweepSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Check stalled sessions.
	if a.cfg.StalledThreshold > 0 && len(snap.Idle) >= a.cfg.StalledThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertStalledSessions,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d onboarding session(s) idle past %dm (oldest %dm)",
				len(snap.Idle), snap.IdleThresholdMins, snap.OldestIdleMins,
			),
			Details: map[string]any{
				"idle_sessions":    len(snap.Idle),
				"active_sessions":  snap.ActiveSessions,
				"oldest_idle_mins": snap.OldestIdleMins,
				"threshold":        a.cfg.StalledThreshold,
			},
			Timestamp: now,
		})
	}

	// Check review backlog.
	if a.cfg.BacklogThreshold > 0 && snap.ReviewBacklog > a.cfg.BacklogThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertReviewBacklog,
			Severity: "high",
			Message: fmt.Sprintf(
				"Review backlog at %d item(s), threshold %d — verification team falling behind",
				snap.ReviewBacklog, a.cfg.BacklogThreshold,
			),
			Details: map[string]any{
				"review_backlog": snap.ReviewBacklog,
				"threshold":      a.cfg.BacklogThreshold,
				"pending_review": snap.PendingReview,
			},
			Timestamp: now,
		})
	}

	// Check failed sessions awaiting cleanup.
	if snap.FailedSessions > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertFailedSessions,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d onboarding session(s) in failed state awaiting cleanup",
				snap.FailedSessions,
			),
			Details: map[string]any{
				"failed_sessions": snap.FailedSessions,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
