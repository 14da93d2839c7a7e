package rtc

import "errors"

var (
	// ErrCallInProgress is returned when the engine already holds a call.
	ErrCallInProgress = errors.New("rtc: call already in progress")
	ErrNoActiveCall   = errors.New("rtc: no active call")
	// ErrNotCallee is returned when the caller tries to accept its own call.
	ErrNotCallee = errors.New("rtc: only the callee can accept a call")
	ErrClosed    = errors.New("rtc: engine closed")
)

// Reason explains why a held call was torn down.
type Reason string

const (
	ReasonHangup   Reason = "hangup"
	ReasonDeclined Reason = "declined"
	// ReasonNetwork is a peer connection that reported disconnected or failed.
	// It ends the call like a hangup and is never returned as an error.
	ReasonNetwork Reason = "network"
	ReasonTimeout Reason = "timeout"
	// ReasonRemote is a session the other party (or the reaper) moved to a terminal status.
	ReasonRemote Reason = "remote"
	ReasonError  Reason = "error"
)
