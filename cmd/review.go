package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mandi-labs/onboard-cli/internal/model"
	"github.com/mandi-labs/onboard-cli/internal/store"
	"github.com/mandi-labs/onboard-cli/pkg/notion"
	sfpkg "github.com/mandi-labs/onboard-cli/pkg/salesforce"
)

var (
	reviewLimit       int
	reviewConcurrency int
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Manage the manual-verification queue",
}

var reviewSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push review items to Notion and completed producers to Salesforce",
	Long: `Drains the out-of-band sync queues. Escalated sessions become cards on
the Notion review board; completed sessions become Salesforce accounts.
Each leg runs only when its credentials are configured, and individual
failures are logged without blocking the rest of the batch.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("review"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if cfg.Notion.Token != "" && cfg.Notion.ReviewDB != "" {
			if err := syncReviewBoard(ctx, st); err != nil {
				return err
			}
		} else {
			zap.L().Info("review sync: notion not configured, skipping review board")
		}

		if cfg.Salesforce.ClientID != "" {
			if err := syncProducers(ctx, st); err != nil {
				return err
			}
		} else {
			zap.L().Info("review sync: salesforce not configured, skipping producer push")
		}

		return nil
	},
}

// syncReviewBoard publishes unsynced review items as Notion cards. An item
// is marked synced only after its card lands, so a crashed run re-pushes
// and the board upsert keeps that idempotent.
func syncReviewBoard(ctx context.Context, st store.Store) error {
	items, err := st.ListReviewItems(ctx, store.ReviewFilter{UnsyncedTo: notion.SyncTarget, Limit: reviewLimit})
	if err != nil {
		return eris.Wrap(err, "review sync: list unsynced items")
	}
	if len(items) == 0 {
		zap.L().Info("review sync: review board up to date")
		return nil
	}

	board := notion.NewBoard(notion.NewClient(cfg.Notion.Token), cfg.Notion.ReviewDB)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(reviewConcurrency)

	var pushed, failed atomic.Int64
	for _, item := range items {
		g.Go(func() error {
			pageID, created, pubErr := board.Publish(gCtx, reviewCard(item))
			if pubErr != nil {
				failed.Add(1)
				zap.L().Error("review sync: publish card failed",
					zap.String("review_id", item.ID),
					zap.String("session_id", item.SessionID),
					zap.Error(pubErr),
				)
				return nil // don't abort batch on individual failure
			}

			if markErr := st.MarkReviewSynced(gCtx, item.ID, notion.SyncTarget); markErr != nil {
				failed.Add(1)
				zap.L().Error("review sync: mark synced failed",
					zap.String("review_id", item.ID),
					zap.Error(markErr),
				)
				return nil
			}

			pushed.Add(1)
			zap.L().Info("review sync: card published",
				zap.String("review_id", item.ID),
				zap.String("page_id", pageID),
				zap.Bool("created", created),
			)
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("review sync: review board complete",
		zap.Int("items", len(items)),
		zap.Int64("pushed", pushed.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}

// syncProducers pushes completed sessions into Salesforce. The upsert
// matches on producer id and GSTIN, so re-pushing an already-synced
// producer refreshes the same account instead of duplicating it.
func syncProducers(ctx context.Context, st store.Store) error {
	sessions, err := st.ListSessions(ctx, store.SessionFilter{Status: model.StatusCompleted, Limit: reviewLimit})
	if err != nil {
		return eris.Wrap(err, "review sync: list completed sessions")
	}
	if len(sessions) == 0 {
		zap.L().Info("review sync: no completed sessions to push")
		return nil
	}

	sfClient, err := initSalesforce()
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(reviewConcurrency)

	var pushed, failed atomic.Int64
	for _, sess := range sessions {
		g.Go(func() error {
			record := producerRecord(sess)
			accountID, created, upErr := sfpkg.UpsertProducer(gCtx, sfClient, record)
			if upErr != nil {
				failed.Add(1)
				zap.L().Error("review sync: upsert producer failed",
					zap.String("producer_id", record.ProducerID),
					zap.String("session_id", sess.ID),
					zap.Error(upErr),
				)
				return nil // don't abort batch on individual failure
			}

			// Contact is best effort — the account already landed.
			if created && record.Email != "" {
				if _, cErr := sfpkg.CreateProducerContact(gCtx, sfClient, accountID, record); cErr != nil {
					zap.L().Warn("review sync: create contact failed",
						zap.String("producer_id", record.ProducerID),
						zap.String("account_id", accountID),
						zap.Error(cErr),
					)
				}
			}

			pushed.Add(1)
			zap.L().Info("review sync: producer pushed",
				zap.String("producer_id", record.ProducerID),
				zap.String("account_id", accountID),
				zap.Bool("created", created),
			)
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("review sync: producer push complete",
		zap.Int("sessions", len(sessions)),
		zap.Int64("pushed", pushed.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}

// reviewCard maps a queued review item onto a Notion card.
func reviewCard(item *model.ReviewItem) notion.ReviewCard {
	issues := make([]string, 0, len(item.Issues))
	for _, iss := range item.Issues {
		issues = append(issues, fmt.Sprintf("%s: %s", iss.Field, iss.Description))
	}
	return notion.ReviewCard{
		SessionID:    item.SessionID,
		ProducerID:   item.ProducerID,
		BusinessName: item.Snapshot["name"],
		Priority:     string(item.Priority),
		RiskScore:    item.RiskScore,
		Issues:       issues,
		EscalatedAt:  item.CreatedAt,
	}
}

// producerRecord maps a completed session onto a Salesforce account record.
func producerRecord(sess *model.Session) sfpkg.ProducerRecord {
	record := sfpkg.ProducerRecord{
		ProducerID:   sess.ProducerID,
		BusinessName: sess.Collected["name"],
		Email:        sess.Collected["email"],
		Phone:        sess.Collected["phone"],
		BusinessType: sess.Collected["business_type"],
		GSTIN:        sess.Collected["gst_number"],
		PAN:          sess.Collected["pan_number"],
		Address:      sess.Collected["address"],
		Pincode:      sess.Collected["pincode"],
	}
	if sess.Assessment != nil {
		record.RiskScore = sess.Assessment.RiskScore
	}
	return record
}

func init() {
	reviewSyncCmd.Flags().IntVar(&reviewLimit, "limit", 100, "max items to push per leg")
	reviewSyncCmd.Flags().IntVar(&reviewConcurrency, "concurrency", 3, "max items to push concurrently")

	reviewCmd.AddCommand(reviewSyncCmd)
	rootCmd.AddCommand(reviewCmd)
}
