package calls

import "errors"

var (
	ErrInvalidArgument   = errors.New("calls: invalid argument")
	ErrNotFound          = errors.New("calls: session not found")
	ErrNotParticipant    = errors.New("calls: user is not a participant of this session")
	ErrInvalidTransition = errors.New("calls: invalid status transition")
	// ErrPersistence wraps any rejected read or write against the session store.
	ErrPersistence = errors.New("calls: persistence failure")
)
