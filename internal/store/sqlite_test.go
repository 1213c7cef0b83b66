package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandi-labs/onboard-cli/internal/model"
)

// Interface-level behavior is covered by the suite in store_test.go.
// These tests exercise what only the file-backed store can show.

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "onboard.db")
	ctx := context.Background()

	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))

	sess := model.NewSession("sess-1", "prod-1", time.Now().UTC())
	sess.SetField("name", "Ravi Traders")
	require.NoError(t, st.CreateSession(ctx, sess))
	require.NoError(t, st.Close())

	st, err = NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	got, err := st.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Ravi Traders", got.Collected["name"])
	assert.Equal(t, int64(1), got.Version)
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "onboard.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.Migrate(ctx))
}

func TestSQLite_OpenInvalidPath(t *testing.T) {
	// A path under a missing directory fails at open or on first use.
	st, err := NewSQLite(filepath.Join(t.TempDir(), "missing", "nested", "onboard.db"))
	if err == nil {
		defer st.Close()
		err = st.Migrate(context.Background())
	}
	assert.Error(t, err)
}
