package signaling

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/pion/webrtc/v4"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformed marks a payload that cannot be decoded or lacks required fields.
var ErrMalformed = errors.New("signaling: malformed message")

type Kind string

const (
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"
)

func (k Kind) Valid() bool {
	return k == KindOffer || k == KindAnswer || k == KindICECandidate
}

// Message is the wire shape broadcast on the signaling topic.
// Offers carry the routing fields (caller, callee, call type) so the callee
// can recognise a call addressed to it without a database read.
type Message struct {
	Kind      Kind   `json:"kind"`
	SessionID string `json:"session_id"`
	From      string `json:"from"`

	CallerID string `json:"caller_id,omitempty"`
	CalleeID string `json:"callee_id,omitempty"`
	CallType string `json:"call_type,omitempty"`

	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

func (m Message) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, m.Kind)
	}
	if m.SessionID == "" || m.From == "" {
		return fmt.Errorf("%w: session_id and from are required", ErrMalformed)
	}
	switch m.Kind {
	case KindOffer:
		if m.CallerID == "" || m.CalleeID == "" || m.CallType == "" {
			return fmt.Errorf("%w: offer needs caller_id, callee_id and call_type", ErrMalformed)
		}
		if m.SDP == nil || m.SDP.Type != webrtc.SDPTypeOffer {
			return fmt.Errorf("%w: offer needs an sdp of type offer", ErrMalformed)
		}
	case KindAnswer:
		if m.SDP == nil || m.SDP.Type != webrtc.SDPTypeAnswer {
			return fmt.Errorf("%w: answer needs an sdp of type answer", ErrMalformed)
		}
	case KindICECandidate:
		if m.Candidate == nil || m.Candidate.Candidate == "" {
			return fmt.Errorf("%w: ice-candidate needs a candidate", ErrMalformed)
		}
	}
	return nil
}

func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func Decode(payload []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
