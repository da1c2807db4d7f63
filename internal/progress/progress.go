// Package progress persists batch session state so interrupted runs can
// be resumed without re-processing completed items.
package progress

import (
	"context"
	"time"

	"github.com/scholargraph/enrich-cli/internal/model"
)

// Store is the durable session ledger. One row per session plus one row
// per (session, paper); a resumed session re-dispatches only items still
// pending or failed.
type Store interface {
	Migrate(ctx context.Context) error
	Close() error

	// CreateSession registers a new session with one pending item per paper.
	CreateSession(ctx context.Context, source string, paperIDs []string) (*model.Session, error)

	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	ListSessions(ctx context.Context, limit int) ([]model.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// PendingIDs returns the papers a resume run must dispatch: items in
	// pending or failed state, in insertion order.
	PendingIDs(ctx context.Context, sessionID string) ([]string, error)

	// MarkItem records an item transition. Moving to in_progress bumps the
	// attempt counter; terminal states record the error and duration.
	MarkItem(ctx context.Context, sessionID, paperID string, status model.ItemStatus, errMsg string, duration time.Duration) error

	// SyncProgress recomputes the session counters from its items.
	SyncProgress(ctx context.Context, sessionID string) error

	UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus, errMsg string) error

	// MarkQuotaExhausted pauses the session and remembers which search
	// credential was active so the resume continues the rotation.
	MarkQuotaExhausted(ctx context.Context, sessionID string, keyIndex int) error

	// ResumeSession flips a resumable session back to in_progress and
	// requeues its failed items. Returns the refreshed session.
	ResumeSession(ctx context.Context, sessionID string) (*model.Session, error)

	// Snapshot returns the per-status item counts for one session.
	Snapshot(ctx context.Context, sessionID string) (*Snapshot, error)

	// CleanupCompleted deletes completed sessions older than the cutoff and
	// returns how many were removed.
	CleanupCompleted(ctx context.Context, olderThan time.Duration) (int, error)
}

// Snapshot is a point-in-time item census for one session.
type Snapshot struct {
	Session   *model.Session
	Pending   int
	InFlight  int
	Completed int
	Failed    int
	Skipped   int
}
