// Package store persists onboarding sessions and their escalated
// review items. Two implementations share the Store interface: an
// embedded SQLite database for single-node deployments and a pgx-backed
// Postgres store for shared ones.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/mandi-labs/onboard-cli/internal/model"
)

// ErrNotFound is returned when a session or review item does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrVersionConflict is returned by UpdateSession when the row was
// modified since the caller loaded it. The caller should re-read and
// decide whether its write still applies.
var ErrVersionConflict = eris.New("store: version conflict")

// SessionFilter narrows ListSessions results. Zero-value fields are
// ignored. UpdatedBefore selects sessions whose last activity predates
// the given instant, which the health monitor uses to find stalled
// conversations.
type SessionFilter struct {
	Status        model.OnboardingStatus
	ProducerID    string
	UpdatedBefore time.Time
	Limit         int
	Offset        int
}

// ReviewFilter narrows ListReviewItems results. UnsyncedTo selects
// items not yet pushed to the named sync target.
type ReviewFilter struct {
	UnsyncedTo string
	Limit      int
}

// Store is the persistence boundary for onboarding state.
type Store interface {
	// CreateSession inserts a new session. The session's Version must
	// be zero; the stored row starts at version 1.
	CreateSession(ctx context.Context, sess *model.Session) error

	// GetSession loads a session by id, or ErrNotFound.
	GetSession(ctx context.Context, id string) (*model.Session, error)

	// UpdateSession writes the session back if its Version still
	// matches the stored row, then increments both. Returns
	// ErrVersionConflict when another writer got there first and
	// ErrNotFound when the session was deleted.
	UpdateSession(ctx context.Context, sess *model.Session) error

	// DeleteSession removes a session, or ErrNotFound.
	DeleteSession(ctx context.Context, id string) error

	// ListSessions returns sessions matching the filter, most recently
	// updated first.
	ListSessions(ctx context.Context, f SessionFilter) ([]*model.Session, error)

	// CountActive counts sessions still collecting data.
	CountActive(ctx context.Context) (int, error)

	// CreateReviewItem queues an escalated session for verification
	// follow-up.
	CreateReviewItem(ctx context.Context, item *model.ReviewItem) error

	// ListReviewItems returns queued items matching the filter, oldest
	// first so sync targets drain in escalation order.
	ListReviewItems(ctx context.Context, f ReviewFilter) ([]*model.ReviewItem, error)

	// MarkReviewSynced records that a sync target has received an item.
	// Marking twice is a no-op.
	MarkReviewSynced(ctx context.Context, reviewID, target string) error

	// Migrate creates or upgrades the schema. Safe to run repeatedly.
	Migrate(ctx context.Context) error

	Close() error
}
