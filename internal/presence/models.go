package presence

import (
	"time"

	"crm-calls/internal/auth"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusBusy    Status = "busy"
	StatusInCall  Status = "in_call"
	StatusAway    Status = "away"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusBusy, StatusInCall, StatusAway:
		return true
	default:
		return false
	}
}

// Presence is the single user_presence row of a user.
// LastSeen is refreshed on every write, including repeated writes of the same status.
type Presence struct {
	UserID   string        `json:"user_id" db:"user_id"`
	UserType auth.UserType `json:"user_type" db:"user_type"`
	Status   Status        `json:"status" db:"status"`
	LastSeen time.Time     `json:"last_seen" db:"last_seen"`
}
