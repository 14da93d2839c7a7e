package rtc

import (
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestCandidateQueue_DrainsInArrivalOrder(t *testing.T) {
	var q candidateQueue
	for _, c := range []string{"a", "b", "c"} {
		q.push(webrtc.ICECandidateInit{Candidate: c})
	}
	if q.len() != 3 {
		t.Fatalf("expected 3 queued, got %d", q.len())
	}
	got := q.drain()
	if len(got) != 3 || got[0].Candidate != "a" || got[2].Candidate != "c" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if q.len() != 0 || len(q.drain()) != 0 {
		t.Fatalf("queue must be empty after drain")
	}
}
