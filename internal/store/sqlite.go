package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/mandi-labs/onboard-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	producer_id   TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	transcript    TEXT NOT NULL DEFAULT '[]',
	collected     TEXT NOT NULL DEFAULT '{}',
	verdicts      TEXT NOT NULL DEFAULT '{}',
	current_field TEXT NOT NULL DEFAULT '',
	failure_count INTEGER NOT NULL DEFAULT 0,
	attempts      INTEGER NOT NULL DEFAULT 0,
	assessment    TEXT,
	version       INTEGER NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS review_items (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	producer_id TEXT NOT NULL DEFAULT '',
	priority    TEXT NOT NULL,
	risk_score  REAL NOT NULL,
	issues      TEXT NOT NULL DEFAULT '[]',
	snapshot    TEXT NOT NULL DEFAULT '{}',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS review_syncs (
	review_id TEXT NOT NULL REFERENCES review_items(id),
	target    TEXT NOT NULL,
	synced_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (review_id, target)
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_producer_id ON sessions(producer_id);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
CREATE INDEX IF NOT EXISTS idx_review_items_created_at ON review_items(created_at);
CREATE INDEX IF NOT EXISTS idx_review_syncs_review_id ON review_syncs(review_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *model.Session) error {
	blobs, err := encodeSession(sess)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, producer_id, status, transcript, collected, verdicts,
		 current_field, failure_count, attempts, assessment, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		sess.ID, sess.ProducerID, string(sess.Status), blobs.transcript, blobs.collected,
		blobs.verdicts, sess.CurrentField, sess.FailureCount, sess.Attempts, blobs.assessment,
		sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert session %s", sess.ID)
	}
	sess.Version = 1
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, producer_id, status, transcript, collected, verdicts, current_field,
		 failure_count, attempts, assessment, version, created_at, updated_at
		 FROM sessions WHERE id = ?`,
		id,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: session %s", id)
	}
	return sess, err
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *model.Session) error {
	blobs, err := encodeSession(sess)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET producer_id = ?, status = ?, transcript = ?, collected = ?,
		 verdicts = ?, current_field = ?, failure_count = ?, attempts = ?, assessment = ?,
		 version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		sess.ProducerID, string(sess.Status), blobs.transcript, blobs.collected, blobs.verdicts,
		sess.CurrentField, sess.FailureCount, sess.Attempts, blobs.assessment,
		now, sess.ID, sess.Version,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update session %s", sess.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// Either the row is gone or another writer bumped the version.
		var v int64
		err := s.db.QueryRowContext(ctx, `SELECT version FROM sessions WHERE id = ?`, sess.ID).Scan(&v)
		if errors.Is(err, sql.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "sqlite: session %s", sess.ID)
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: recheck session %s", sess.ID)
		}
		return eris.Wrapf(ErrVersionConflict, "sqlite: session %s at version %d, have %d", sess.ID, v, sess.Version)
	}
	sess.Version++
	sess.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete session %s", id)
	}
	return checkRowsAffected(res, "session", id)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, f SessionFilter) ([]*model.Session, error) {
	query := `SELECT id, producer_id, status, transcript, collected, verdicts, current_field,
	 failure_count, attempts, assessment, version, created_at, updated_at
	 FROM sessions WHERE 1=1`
	var args []any

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.ProducerID != "" {
		query += ` AND producer_id = ?`
		args = append(args, f.ProducerID)
	}
	if !f.UpdatedBefore.IsZero() {
		query += ` AND updated_at < ?`
		args = append(args, f.UpdatedBefore.UTC())
	}
	query += ` ORDER BY updated_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if f.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE status IN (?, ?)`,
		string(model.StatusStarted), string(model.StatusInProgress),
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count active")
}

func (s *SQLiteStore) CreateReviewItem(ctx context.Context, item *model.ReviewItem) error {
	issuesJSON, err := json.Marshal(item.Issues)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal issues")
	}
	snapshotJSON, err := json.Marshal(item.Snapshot)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal snapshot")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO review_items (id, session_id, producer_id, priority, risk_score, issues, snapshot, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.SessionID, item.ProducerID, string(item.Priority), item.RiskScore,
		string(issuesJSON), string(snapshotJSON), item.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert review item %s", item.ID)
}

func (s *SQLiteStore) ListReviewItems(ctx context.Context, f ReviewFilter) ([]*model.ReviewItem, error) {
	query := `SELECT id, session_id, producer_id, priority, risk_score, issues, snapshot, created_at
	 FROM review_items WHERE 1=1`
	var args []any

	if f.UnsyncedTo != "" {
		query += ` AND NOT EXISTS (SELECT 1 FROM review_syncs WHERE review_id = review_items.id AND target = ?)`
		args = append(args, f.UnsyncedTo)
	}
	query += ` ORDER BY created_at ASC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list review items")
	}
	defer rows.Close()

	var items []*model.ReviewItem
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list review items iterate")
}

func (s *SQLiteStore) MarkReviewSynced(ctx context.Context, reviewID, target string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO review_syncs (review_id, target, synced_at) VALUES (?, ?, ?)
		 ON CONFLICT (review_id, target) DO NOTHING`,
		reviewID, target, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: mark review %s synced to %s", reviewID, target)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type sessionBlobs struct {
	transcript string
	collected  string
	verdicts   string
	assessment sql.NullString
}

func encodeSession(sess *model.Session) (sessionBlobs, error) {
	var b sessionBlobs

	transcript, err := json.Marshal(sess.Transcript)
	if err != nil {
		return b, eris.Wrap(err, "store: marshal transcript")
	}
	collected, err := json.Marshal(sess.Collected)
	if err != nil {
		return b, eris.Wrap(err, "store: marshal collected")
	}
	verdicts, err := json.Marshal(sess.Verdicts)
	if err != nil {
		return b, eris.Wrap(err, "store: marshal verdicts")
	}
	b.transcript = string(transcript)
	b.collected = string(collected)
	b.verdicts = string(verdicts)

	if sess.Assessment != nil {
		assessment, err := json.Marshal(sess.Assessment)
		if err != nil {
			return b, eris.Wrap(err, "store: marshal assessment")
		}
		b.assessment = sql.NullString{String: string(assessment), Valid: true}
	}
	return b, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*model.Session, error) {
	var sess model.Session
	var transcript, collected, verdicts string
	var assessment sql.NullString

	err := row.Scan(&sess.ID, &sess.ProducerID, &sess.Status, &transcript, &collected,
		&verdicts, &sess.CurrentField, &sess.FailureCount, &sess.Attempts, &assessment,
		&sess.Version, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan session")
	}

	if err := json.Unmarshal([]byte(transcript), &sess.Transcript); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal transcript")
	}
	if err := json.Unmarshal([]byte(collected), &sess.Collected); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal collected")
	}
	if err := json.Unmarshal([]byte(verdicts), &sess.Verdicts); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal verdicts")
	}
	if assessment.Valid {
		sess.Assessment = &model.RiskAssessment{}
		if err := json.Unmarshal([]byte(assessment.String), sess.Assessment); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal assessment")
		}
	}
	// JSON null round-trips to nil maps; the engine mutates these in place.
	if sess.Collected == nil {
		sess.Collected = make(map[string]string)
	}
	if sess.Verdicts == nil {
		sess.Verdicts = make(map[string]*model.Verdict)
	}
	return &sess, nil
}

func scanReviewItem(row scannable) (*model.ReviewItem, error) {
	var item model.ReviewItem
	var issues, snapshot string

	err := row.Scan(&item.ID, &item.SessionID, &item.ProducerID, &item.Priority,
		&item.RiskScore, &issues, &snapshot, &item.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan review item")
	}

	if err := json.Unmarshal([]byte(issues), &item.Issues); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal issues")
	}
	if err := json.Unmarshal([]byte(snapshot), &item.Snapshot); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal snapshot")
	}
	return &item, nil
}
