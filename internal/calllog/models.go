package calllog

import "time"

// Entry is an immutable, append-only record of a completed call.
//
// Invariants:
// - Entries are never updated or deleted.
// - At most one entry exists per call session (UNIQUE call_session_id).
// - DurationSeconds >= 0.
//
// Declined and missed calls never produce an entry.
type Entry struct {
	ID            string `json:"id" db:"id"`
	CallSessionID string `json:"call_session_id" db:"call_session_id"`

	CallerID string `json:"caller_id" db:"caller_id"`
	CalleeID string `json:"callee_id" db:"callee_id"`
	CallType string `json:"call_type" db:"call_type"`

	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
