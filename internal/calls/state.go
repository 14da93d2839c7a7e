package calls

// Status is the persisted call lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRinging  Status = "ringing"
	StatusActive   Status = "active"
	StatusEnded    Status = "ended"
	StatusDeclined Status = "declined"
	StatusMissed   Status = "missed"
)

// pending may jump straight to active when the callee answers before the
// caller has recorded ringing.
var validTransitions = map[Status][]Status{
	StatusPending:  {StatusRinging, StatusActive, StatusDeclined, StatusMissed, StatusEnded},
	StatusRinging:  {StatusActive, StatusDeclined, StatusMissed, StatusEnded},
	StatusActive:   {StatusEnded},
	StatusEnded:    {},
	StatusDeclined: {},
	StatusMissed:   {},
}

func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo checks the transition table.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusEnded || s == StatusDeclined || s == StatusMissed
}

// IsRinging covers the states in which the callee can still answer.
func (s Status) IsRinging() bool {
	return s == StatusPending || s == StatusRinging
}
