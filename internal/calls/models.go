package calls

import (
	"time"

	"crm-calls/internal/auth"
)

type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

func (t CallType) Valid() bool { return t == CallTypeAudio || t == CallTypeVideo }

// WantsVideo reports whether local capture must include a camera track.
func (t CallType) WantsVideo() bool { return t == CallTypeVideo }

// Session is one row of call_sessions: the lifecycle record of a single call attempt.
//
// Invariants:
// - StartTime is set only when the call reaches active.
// - EndTime and DurationSeconds are set only on terminal statuses.
// - DurationSeconds >= 0 whenever set.
type Session struct {
	ID         string        `json:"id" db:"id"`
	CallerID   string        `json:"caller_id" db:"caller_id"`
	CalleeID   string        `json:"callee_id" db:"callee_id"`
	CallType   CallType      `json:"call_type" db:"call_type"`
	Status     Status        `json:"status" db:"status"`
	CallerType auth.UserType `json:"caller_type" db:"caller_type"`

	StartTime       *time.Time `json:"start_time,omitempty" db:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty" db:"end_time"`
	DurationSeconds *int       `json:"duration_seconds,omitempty" db:"duration_seconds"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Involves reports whether userID is the caller or the callee.
func (s Session) Involves(userID string) bool {
	return userID != "" && (s.CallerID == userID || s.CalleeID == userID)
}

// Peer returns the other participant from userID's point of view.
func (s Session) Peer(userID string) string {
	if s.CallerID == userID {
		return s.CalleeID
	}
	return s.CallerID
}
