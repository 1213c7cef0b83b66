package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mandi-labs/onboard-cli/internal/config"
)

// Sweeper runs the periodic session-health sweep in the background.
type Sweeper struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitorConfig
}

// NewSweeper creates a background health sweeper.
func NewSweeper(collector *Collector, alerter *Alerter, cfg config.MonitorConfig) *Sweeper {
	return &Sweeper{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run starts the periodic sweep loop. It blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.SweepIntervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.sweeper"))
	log.Info("starting session health sweep",
		zap.Duration("interval", interval),
		zap.Int("idle_threshold_mins", s.cfg.IdleThresholdMins),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("session health sweep stopped")
			return
		case <-ticker.C:
			s.sweep(ctx, log)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context, log *zap.Logger) {
	snap, err := s.collector.Collect(ctx, s.cfg.IdleThresholdMins)
	if err != nil {
		log.Error("monitoring: failed to collect session metrics", zap.Error(err))
		return
	}

	log.Info("monitoring: sweep summary",
		zap.Int("active_sessions", snap.ActiveSessions),
		zap.Int("idle_sessions", len(snap.Idle)),
		zap.Int("pending_review", snap.PendingReview),
		zap.Int("failed_sessions", snap.FailedSessions),
		zap.Int("review_backlog", snap.ReviewBacklog),
	)

	for _, idle := range snap.Idle {
		log.Warn("monitoring: session idle past threshold",
			zap.String("session_id", idle.SessionID),
			zap.String("producer_id", idle.ProducerID),
			zap.String("status", string(idle.Status)),
			zap.Int("idle_mins", idle.IdleMins),
		)
	}

	alerts := s.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return
	}

	sent := s.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: sweep complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
}
