package model

import "time"

// SessionStatus represents the lifecycle state of a batch session.
type SessionStatus string

const (
	SessionPending      SessionStatus = "pending"
	SessionInProgress   SessionStatus = "in_progress"
	SessionCompleted    SessionStatus = "completed"
	SessionFailed       SessionStatus = "failed"
	SessionPaused       SessionStatus = "paused"
	SessionAPIExhausted SessionStatus = "api_exhausted"
)

// ItemStatus represents the state of a single item within a session.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemInProgress ItemStatus = "in_progress"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
	ItemSkipped    ItemStatus = "skipped"
)

// Session is the durable progress record of one batch run. It survives
// process restarts; a resumed run re-dispatches only pending and failed
// items. KeyIndex remembers which search credential was active so a resume
// does not restart the rotation from the beginning.
type Session struct {
	ID           string        `json:"id"`
	Source       string        `json:"source"`
	TotalItems   int           `json:"total_items"`
	Processed    int           `json:"processed"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Status       SessionStatus `json:"status"`
	KeyIndex     int           `json:"key_index"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Resumable reports whether the session can be picked up by a resume run.
func (s *Session) Resumable() bool {
	switch s.Status {
	case SessionInProgress, SessionFailed, SessionPaused, SessionAPIExhausted:
		return true
	default:
		return false
	}
}

// Remaining returns the number of items not yet completed or skipped.
func (s *Session) Remaining() int {
	n := s.TotalItems - s.Processed - s.Skipped
	if n < 0 {
		return 0
	}
	return n
}

// ItemRecord tracks one paper within a session. Attempts only ever grows;
// backward status transitions happen only on resume, which requeues
// failed and stale in_progress items back to pending.
type ItemRecord struct {
	SessionID    string        `json:"session_id"`
	PaperID      string        `json:"paper_id"`
	Status       ItemStatus    `json:"status"`
	Attempts     int           `json:"attempts"`
	LastAttempt  time.Time     `json:"last_attempt,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
}
