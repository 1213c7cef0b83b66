package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/mandi-labs/onboard-cli/internal/db"
	"github.com/mandi-labs/onboard-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations. Every
// turn of a conversation reads and writes its session row.
var preparedStatements = map[string]string{
	"insert_session": `INSERT INTO sessions (id, producer_id, status, transcript, collected, verdicts,
		 current_field, failure_count, attempts, assessment, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12)`,
	"get_session": `SELECT id, producer_id, status, transcript, collected, verdicts, current_field,
		 failure_count, attempts, assessment, version, created_at, updated_at
		 FROM sessions WHERE id = $1`,
	"update_session": `UPDATE sessions SET producer_id = $1, status = $2, transcript = $3, collected = $4,
		 verdicts = $5, current_field = $6, failure_count = $7, attempts = $8, assessment = $9,
		 version = version + 1, updated_at = $10
		 WHERE id = $11 AND version = $12`,
	"delete_session": `DELETE FROM sessions WHERE id = $1`,
	"count_active":   `SELECT COUNT(*) FROM sessions WHERE status IN ($1, $2)`,
	"insert_review_item": `INSERT INTO review_items (id, session_id, producer_id, priority, risk_score, issues, snapshot, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"mark_review_synced": `INSERT INTO review_syncs (review_id, target, synced_at) VALUES ($1, $2, $3)
		 ON CONFLICT (review_id, target) DO NOTHING`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	producer_id   TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	transcript    JSONB NOT NULL DEFAULT '[]',
	collected     JSONB NOT NULL DEFAULT '{}',
	verdicts      JSONB NOT NULL DEFAULT '{}',
	current_field TEXT NOT NULL DEFAULT '',
	failure_count INTEGER NOT NULL DEFAULT 0,
	attempts      INTEGER NOT NULL DEFAULT 0,
	assessment    JSONB,
	version       BIGINT NOT NULL DEFAULT 1,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS review_items (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_id  TEXT NOT NULL,
	producer_id TEXT NOT NULL DEFAULT '',
	priority    TEXT NOT NULL,
	risk_score  DOUBLE PRECISION NOT NULL,
	issues      JSONB NOT NULL DEFAULT '[]',
	snapshot    JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS review_syncs (
	review_id TEXT NOT NULL REFERENCES review_items(id),
	target    TEXT NOT NULL,
	synced_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (review_id, target)
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_producer_id ON sessions(producer_id);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
CREATE INDEX IF NOT EXISTS idx_review_items_created_at ON review_items(created_at);
CREATE INDEX IF NOT EXISTS idx_review_syncs_review_id ON review_syncs(review_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *model.Session) error {
	transcript, collected, verdicts, assessment, err := marshalSession(sess)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, producer_id, status, transcript, collected, verdicts,
		 current_field, failure_count, attempts, assessment, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12)`,
		sess.ID, sess.ProducerID, string(sess.Status), transcript, collected, verdicts,
		sess.CurrentField, sess.FailureCount, sess.Attempts, assessment,
		sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert session %s", sess.ID)
	}
	sess.Version = 1
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, producer_id, status, transcript, collected, verdicts, current_field,
		 failure_count, attempts, assessment, version, created_at, updated_at
		 FROM sessions WHERE id = $1`,
		id,
	)
	sess, err := scanPostgresSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: session %s", id)
	}
	return sess, err
}

func (s *PostgresStore) UpdateSession(ctx context.Context, sess *model.Session) error {
	transcript, collected, verdicts, assessment, err := marshalSession(sess)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET producer_id = $1, status = $2, transcript = $3, collected = $4,
		 verdicts = $5, current_field = $6, failure_count = $7, attempts = $8, assessment = $9,
		 version = version + 1, updated_at = $10
		 WHERE id = $11 AND version = $12`,
		sess.ProducerID, string(sess.Status), transcript, collected, verdicts,
		sess.CurrentField, sess.FailureCount, sess.Attempts, assessment,
		now, sess.ID, sess.Version,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update session %s", sess.ID)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or another writer bumped the version.
		var v int64
		err := s.pool.QueryRow(ctx, `SELECT version FROM sessions WHERE id = $1`, sess.ID).Scan(&v)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "postgres: session %s", sess.ID)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: recheck session %s", sess.ID)
		}
		return eris.Wrapf(ErrVersionConflict, "postgres: session %s at version %d, have %d", sess.ID, v, sess.Version)
	}
	sess.Version++
	sess.UpdatedAt = now
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete session %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}
	return nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, f SessionFilter) ([]*model.Session, error) {
	query := `SELECT id, producer_id, status, transcript, collected, verdicts, current_field,
	 failure_count, attempts, assessment, version, created_at, updated_at
	 FROM sessions WHERE true`
	args := []any{}
	argIdx := 1

	if f.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(f.Status))
		argIdx++
	}
	if f.ProducerID != "" {
		query += fmt.Sprintf(` AND producer_id = $%d`, argIdx)
		args = append(args, f.ProducerID)
		argIdx++
	}
	if !f.UpdatedBefore.IsZero() {
		query += fmt.Sprintf(` AND updated_at < $%d`, argIdx)
		args = append(args, f.UpdatedBefore.UTC())
		argIdx++
	}
	query += ` ORDER BY updated_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if f.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, f.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		sess, err := scanPostgresSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE status IN ($1, $2)`,
		string(model.StatusStarted), string(model.StatusInProgress),
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count active")
}

func (s *PostgresStore) CreateReviewItem(ctx context.Context, item *model.ReviewItem) error {
	issuesJSON, err := json.Marshal(item.Issues)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal issues")
	}
	snapshotJSON, err := json.Marshal(item.Snapshot)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal snapshot")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO review_items (id, session_id, producer_id, priority, risk_score, issues, snapshot, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.ID, item.SessionID, item.ProducerID, string(item.Priority), item.RiskScore,
		issuesJSON, snapshotJSON, item.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert review item %s", item.ID)
}

func (s *PostgresStore) ListReviewItems(ctx context.Context, f ReviewFilter) ([]*model.ReviewItem, error) {
	query := `SELECT id, session_id, producer_id, priority, risk_score, issues, snapshot, created_at
	 FROM review_items WHERE true`
	args := []any{}
	argIdx := 1

	if f.UnsyncedTo != "" {
		query += fmt.Sprintf(` AND NOT EXISTS (SELECT 1 FROM review_syncs WHERE review_id = review_items.id AND target = $%d)`, argIdx)
		args = append(args, f.UnsyncedTo)
		argIdx++
	}
	query += ` ORDER BY created_at ASC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list review items")
	}
	defer rows.Close()

	var items []*model.ReviewItem
	for rows.Next() {
		var item model.ReviewItem
		var issues, snapshot []byte

		if err := rows.Scan(&item.ID, &item.SessionID, &item.ProducerID, &item.Priority,
			&item.RiskScore, &issues, &snapshot, &item.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan review item")
		}
		if err := json.Unmarshal(issues, &item.Issues); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal issues")
		}
		if err := json.Unmarshal(snapshot, &item.Snapshot); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal snapshot")
		}
		items = append(items, &item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list review items iterate")
}

func (s *PostgresStore) MarkReviewSynced(ctx context.Context, reviewID, target string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO review_syncs (review_id, target, synced_at) VALUES ($1, $2, $3)
		 ON CONFLICT (review_id, target) DO NOTHING`,
		reviewID, target, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: mark review %s synced to %s", reviewID, target)
}

// marshalSession produces the JSONB column values. A nil assessment
// stays NULL rather than the JSON literal null.
func marshalSession(sess *model.Session) (transcript, collected, verdicts, assessment []byte, err error) {
	if transcript, err = json.Marshal(sess.Transcript); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "postgres: marshal transcript")
	}
	if collected, err = json.Marshal(sess.Collected); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "postgres: marshal collected")
	}
	if verdicts, err = json.Marshal(sess.Verdicts); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "postgres: marshal verdicts")
	}
	if sess.Assessment != nil {
		if assessment, err = json.Marshal(sess.Assessment); err != nil {
			return nil, nil, nil, nil, eris.Wrap(err, "postgres: marshal assessment")
		}
	}
	return transcript, collected, verdicts, assessment, nil
}

func scanPostgresSession(row scannable) (*model.Session, error) {
	var sess model.Session
	var transcript, collected, verdicts []byte
	var assessment *[]byte

	err := row.Scan(&sess.ID, &sess.ProducerID, &sess.Status, &transcript, &collected,
		&verdicts, &sess.CurrentField, &sess.FailureCount, &sess.Attempts, &assessment,
		&sess.Version, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan session")
	}

	if err := json.Unmarshal(transcript, &sess.Transcript); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal transcript")
	}
	if err := json.Unmarshal(collected, &sess.Collected); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal collected")
	}
	if err := json.Unmarshal(verdicts, &sess.Verdicts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal verdicts")
	}
	if assessment != nil {
		sess.Assessment = &model.RiskAssessment{}
		if err := json.Unmarshal(*assessment, sess.Assessment); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal assessment")
		}
	}
	if sess.Collected == nil {
		sess.Collected = make(map[string]string)
	}
	if sess.Verdicts == nil {
		sess.Verdicts = make(map[string]*model.Verdict)
	}
	return &sess, nil
}
