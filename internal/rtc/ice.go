package rtc

import "github.com/pion/webrtc/v4"

// candidateQueue holds remote candidates that arrived before the remote
// description was applied. Drain returns them in arrival order.
type candidateQueue struct {
	items []webrtc.ICECandidateInit
}

func (q *candidateQueue) push(c webrtc.ICECandidateInit) {
	q.items = append(q.items, c)
}

func (q *candidateQueue) drain() []webrtc.ICECandidateInit {
	out := q.items
	q.items = nil
	return out
}

func (q *candidateQueue) len() int { return len(q.items) }
