package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/mandi-labs/onboard-cli/internal/model"
	"github.com/mandi-labs/onboard-cli/internal/store"
)

// maxSweepRows caps how many rows a single sweep pulls per query.
const maxSweepRows = 10000

// IdleSession identifies an active session that has gone quiet.
type IdleSession struct {
	SessionID  string                 `json:"session_id"`
	ProducerID string                 `json:"producer_id"`
	Status     model.OnboardingStatus `json:"status"`
	IdleMins   int                    `json:"idle_mins"`
}

// SweepSnapshot holds a point-in-time view of onboarding health.
type SweepSnapshot struct {
	// Session counts by state.
	ActiveSessions int `json:"active_sessions"`
	PendingReview  int `json:"pending_review"`
	FailedSessions int `json:"failed_sessions"`

	// Active sessions whose last turn predates the idle threshold.
	Idle           []IdleSession `json:"idle,omitempty"`
	OldestIdleMins int           `json:"oldest_idle_mins"`

	// Review items no sync target has drained yet.
	ReviewBacklog int `json:"review_backlog"`

	// Metadata.
	IdleThresholdMins int       `json:"idle_threshold_mins"`
	CollectedAt       time.Time `json:"collected_at"`
}

// Collector gathers health metrics from the session store.
type Collector struct {
	store      store.Store
	syncTarget string
}

// NewCollector creates a metrics collector. syncTarget names the review
// sink whose backlog is measured; empty skips the backlog count.
func NewCollector(st store.Store, syncTarget string) *Collector {
	return &Collector{store: st, syncTarget: syncTarget}
}

// Collect gathers a snapshot of session health. Active sessions whose
// last update predates the idle threshold are flagged individually.
func (c *Collector) Collect(ctx context.Context, idleThresholdMins int) (*SweepSnapshot, error) {
	snap := &SweepSnapshot{
		IdleThresholdMins: idleThresholdMins,
		CollectedAt:       time.Now().UTC(),
	}

	active, err := c.store.CountActive(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count active sessions")
	}
	snap.ActiveSessions = active

	cutoff := snap.CollectedAt.Add(-time.Duration(idleThresholdMins) * time.Minute)
	for _, status := range []model.OnboardingStatus{model.StatusStarted, model.StatusInProgress} {
		stale, err := c.store.ListSessions(ctx, store.SessionFilter{
			Status:        status,
			UpdatedBefore: cutoff,
			Limit:         maxSweepRows,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: list %s sessions", status)
		}
		for _, sess := range stale {
			mins := int(snap.CollectedAt.Sub(sess.UpdatedAt).Minutes())
			snap.Idle = append(snap.Idle, IdleSession{
				SessionID:  sess.ID,
				ProducerID: sess.ProducerID,
				Status:     sess.Status,
				IdleMins:   mins,
			})
			if mins > snap.OldestIdleMins {
				snap.OldestIdleMins = mins
			}
		}
	}

	pending, err := c.store.ListSessions(ctx, store.SessionFilter{
		Status: model.StatusPendingVerification,
		Limit:  maxSweepRows,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list pending sessions")
	}
	snap.PendingReview = len(pending)

	failed, err := c.store.ListSessions(ctx, store.SessionFilter{
		Status: model.StatusFailed,
		Limit:  maxSweepRows,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list failed sessions")
	}
	snap.FailedSessions = len(failed)

	if c.syncTarget != "" {
		backlog, err := c.store.ListReviewItems(ctx, store.ReviewFilter{
			UnsyncedTo: c.syncTarget,
			Limit:      maxSweepRows,
		})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list review backlog")
		}
		snap.ReviewBacklog = len(backlog)
	}

	return snap, nil
}
