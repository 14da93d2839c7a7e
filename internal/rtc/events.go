package rtc

import "crm-calls/internal/calls"

// Incoming is fired when an offer addressed to this user arrives while idle.
// Accept fires it again with MediaReady false when it had no offer to answer.
type Incoming struct {
	SessionID string         `json:"session_id"`
	CallerID  string         `json:"caller_id"`
	CallType  calls.CallType `json:"call_type"`
	// MediaReady is false when local capture failed or no offer was answered;
	// Accept retries the first, a late offer clears the second.
	MediaReady bool `json:"media_ready"`
}

// RemoteStream is fired once per remote track.
type RemoteStream struct {
	SessionID string `json:"session_id"`
	TrackID   string `json:"track_id"`
	StreamID  string `json:"stream_id"`
	Kind      string `json:"kind"`
}

// Ended is fired at the end of cleanup, after local resources are released.
type Ended struct {
	SessionID string       `json:"session_id"`
	Status    calls.Status `json:"status"`
	Reason    Reason       `json:"reason"`
}
