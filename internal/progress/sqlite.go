package progress

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/scholargraph/enrich-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "progress: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "progress: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	source        TEXT NOT NULL,
	total_items   INTEGER NOT NULL DEFAULT 0,
	processed     INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0,
	skipped       INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'pending',
	key_index     INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS session_items (
	session_id    TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	paper_id      TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	attempts      INTEGER NOT NULL DEFAULT 0,
	last_attempt  DATETIME,
	error_message TEXT,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, paper_id)
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_session_items_status ON session_items(session_id, status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "progress: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, source string, paperIDs []string) (*model.Session, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "progress: begin")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, source, total_items, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, source, len(paperIDs), string(model.SessionPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "progress: insert session")
	}

	for i, paperID := range paperIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO session_items (session_id, paper_id, seq, status) VALUES (?, ?, ?, ?)`,
			id, paperID, i, string(model.ItemPending),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "progress: insert item %s", paperID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "progress: commit session")
	}

	return &model.Session{
		ID:         id,
		Source:     source,
		TotalItems: len(paperIDs),
		Status:     model.SessionPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, total_items, processed, failed, skipped, status, key_index, error_message, created_at, updated_at
		 FROM sessions WHERE id = ?`,
		sessionID,
	)
	return scanSession(row)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, total_items, processed, failed, skipped, status, key_index, error_message, created_at, updated_at
		 FROM sessions ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "progress: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "progress: list sessions iterate")
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return eris.Wrapf(err, "progress: delete session %s", sessionID)
	}
	return checkRowsAffected(res, "session", sessionID)
}

func (s *SQLiteStore) PendingIDs(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT paper_id FROM session_items
		 WHERE session_id = ? AND status IN (?, ?)
		 ORDER BY seq`,
		sessionID, string(model.ItemPending), string(model.ItemFailed),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "progress: pending ids %s", sessionID)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "progress: scan pending id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "progress: pending ids iterate")
}

func (s *SQLiteStore) MarkItem(ctx context.Context, sessionID, paperID string, status model.ItemStatus, errMsg string, duration time.Duration) error {
	now := time.Now().UTC()

	var res sql.Result
	var err error
	if status == model.ItemInProgress {
		res, err = s.db.ExecContext(ctx,
			`UPDATE session_items SET status = ?, attempts = attempts + 1, last_attempt = ?, error_message = NULL
			 WHERE session_id = ? AND paper_id = ?`,
			string(status), now, sessionID, paperID,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE session_items SET status = ?, error_message = ?, duration_ms = ?
			 WHERE session_id = ? AND paper_id = ?`,
			string(status), nullableString(errMsg), duration.Milliseconds(), sessionID, paperID,
		)
	}
	if err != nil {
		return eris.Wrapf(err, "progress: mark item %s/%s", sessionID, paperID)
	}
	return checkRowsAffected(res, "item", paperID)
}

func (s *SQLiteStore) SyncProgress(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET
			processed = (SELECT COUNT(*) FROM session_items WHERE session_id = ? AND status = ?),
			failed    = (SELECT COUNT(*) FROM session_items WHERE session_id = ? AND status = ?),
			skipped   = (SELECT COUNT(*) FROM session_items WHERE session_id = ? AND status = ?),
			updated_at = ?
		 WHERE id = ?`,
		sessionID, string(model.ItemCompleted),
		sessionID, string(model.ItemFailed),
		sessionID, string(model.ItemSkipped),
		time.Now().UTC(), sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "progress: sync %s", sessionID)
	}
	return checkRowsAffected(res, "session", sessionID)
}

func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(status), nullableString(errMsg), time.Now().UTC(), sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "progress: update session status %s", sessionID)
	}
	return checkRowsAffected(res, "session", sessionID)
}

func (s *SQLiteStore) MarkQuotaExhausted(ctx context.Context, sessionID string, keyIndex int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, key_index = ?, updated_at = ? WHERE id = ?`,
		string(model.SessionAPIExhausted), keyIndex, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "progress: mark quota exhausted %s", sessionID)
	}
	return checkRowsAffected(res, "session", sessionID)
}

func (s *SQLiteStore) ResumeSession(ctx context.Context, sessionID string) (*model.Session, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Resumable() {
		return nil, eris.Errorf("progress: session %s is %s, not resumable", sessionID, sess.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "progress: begin resume")
	}
	defer tx.Rollback()

	// failed -> pending is the only backward item transition; items left
	// in_progress by a crash are requeued the same way.
	_, err = tx.ExecContext(ctx,
		`UPDATE session_items SET status = ? WHERE session_id = ? AND status IN (?, ?)`,
		string(model.ItemPending), sessionID, string(model.ItemFailed), string(model.ItemInProgress),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "progress: requeue items %s", sessionID)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET status = ?, error_message = NULL, updated_at = ? WHERE id = ?`,
		string(model.SessionInProgress), time.Now().UTC(), sessionID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "progress: resume session %s", sessionID)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "progress: commit resume")
	}
	return s.GetSession(ctx, sessionID)
}

func (s *SQLiteStore) Snapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM session_items WHERE session_id = ? GROUP BY status`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "progress: snapshot %s", sessionID)
	}
	defer rows.Close()

	snap := &Snapshot{Session: sess}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, eris.Wrap(err, "progress: scan snapshot")
		}
		switch model.ItemStatus(status) {
		case model.ItemPending:
			snap.Pending = count
		case model.ItemInProgress:
			snap.InFlight = count
		case model.ItemCompleted:
			snap.Completed = count
		case model.ItemFailed:
			snap.Failed = count
		case model.ItemSkipped:
			snap.Skipped = count
		}
	}
	return snap, eris.Wrap(rows.Err(), "progress: snapshot iterate")
}

func (s *SQLiteStore) CleanupCompleted(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE status = ? AND updated_at < ?`,
		string(model.SessionCompleted), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "progress: cleanup completed")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "progress: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*model.Session, error) {
	var sess model.Session
	var errMsg sql.NullString

	err := row.Scan(&sess.ID, &sess.Source, &sess.TotalItems, &sess.Processed, &sess.Failed,
		&sess.Skipped, &sess.Status, &sess.KeyIndex, &errMsg, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("session not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "progress: scan session")
	}
	sess.ErrorMessage = errMsg.String
	return &sess, nil
}
