package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandi-labs/onboard-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetSession_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM sessions WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSession(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs("sess-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sess := model.NewSession("sess-1", "prod-1", time.Now().UTC())
	err := s.CreateSession(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sess.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateSession_Success(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sessions SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), "sess-1", int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sess := model.NewSession("sess-1", "prod-1", time.Now().UTC())
	sess.Version = 3
	err := s.UpdateSession(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, int64(4), sess.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateSession_VersionConflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sessions SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), "sess-1", int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT version FROM sessions`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(7)))

	sess := model.NewSession("sess-1", "prod-1", time.Now().UTC())
	sess.Version = 3
	err := s.UpdateSession(context.Background(), sess)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrVersionConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateSession_RowGone(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sessions SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), "sess-1", int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT version FROM sessions`).
		WithArgs("sess-1").
		WillReturnError(pgx.ErrNoRows)

	sess := model.NewSession("sess-1", "prod-1", time.Now().UTC())
	sess.Version = 3
	err := s.UpdateSession(context.Background(), sess)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteSession_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM sessions`).
		WithArgs("nonexistent").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteSession(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountActive(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sessions`).
		WithArgs("started", "in_progress").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	n, err := s.CountActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkReviewSynced(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO review_syncs`).
		WithArgs("rev-1", "notion", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.MarkReviewSynced(context.Background(), "rev-1", "notion")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListReviewItems_Unsynced(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"id", "session_id", "producer_id", "priority", "risk_score", "issues", "snapshot", "created_at"}).
		AddRow("rev-1", "sess-1", "prod-1", model.PriorityUrgent, 82.0,
			[]byte(`[{"field":"gst_number","kind":"format_failure","description":"Invalid GSTIN format","severity":0.8}]`),
			[]byte(`{"name":"Ravi Traders"}`), time.Now().UTC())

	mock.ExpectQuery(`FROM review_items`).
		WithArgs("notion", 100).
		WillReturnRows(rows)

	items, err := s.ListReviewItems(context.Background(), ReviewFilter{UnsyncedTo: "notion"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.PriorityUrgent, items[0].Priority)
	assert.Equal(t, 82.0, items[0].RiskScore)
	require.Len(t, items[0].Issues, 1)
	assert.Equal(t, "gst_number", items[0].Issues[0].Field)
	assert.Equal(t, "Ravi Traders", items[0].Snapshot["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
