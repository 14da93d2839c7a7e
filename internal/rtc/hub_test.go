package rtc

import (
	"context"
	"errors"
	"testing"
	"time"

	"crm-calls/internal/auth"
	"crm-calls/internal/calls"
)

func waitEvent(t *testing.T, ch <-chan Event, typ string) Event {
	t.Helper()
	for {
		ev := receive(t, ch, typ+" event")
		if ev.Type == typ {
			return ev
		}
	}
}

func TestHub_RoutesEventsPerUser(t *testing.T) {
	f := newFixture(t)
	hub := NewHub(f.config(&fakeMedia{}, &fakePeers{}, 0))
	defer hub.Close()

	d := as("d", admin)
	events, cancel, err := hub.Subscribe(d)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	c := as("c", customer)
	sess, err := hub.Initiate(c, "d", calls.CallTypeAudio)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if sess.CallerType != customer {
		t.Fatalf("caller type comes from the identity, got %q", sess.CallerType)
	}

	in := waitEvent(t, events, EventIncoming)
	if in.Incoming == nil || in.Incoming.SessionID != sess.ID {
		t.Fatalf("unexpected incoming event: %+v", in)
	}

	if _, err := hub.Accept(d, sess.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got, err := hub.Get(d, sess.ID); err != nil || got.Status != calls.StatusActive {
		t.Fatalf("expected active session, got %+v (err %v)", got, err)
	}
	if _, err := hub.End(c); err != nil {
		t.Fatalf("end: %v", err)
	}

	ended := waitEvent(t, events, EventEnded)
	if ended.Ended == nil || ended.Ended.SessionID != sess.ID || ended.Ended.Reason != ReasonRemote {
		t.Fatalf("unexpected ended event: %+v", ended)
	}
}

func TestHub_RequiresIdentity(t *testing.T) {
	f := newFixture(t)
	hub := NewHub(f.config(&fakeMedia{}, &fakePeers{}, 0))
	defer hub.Close()

	if _, err := hub.Initiate(context.Background(), "d", calls.CallTypeAudio); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	f := newFixture(t)
	hub := NewHub(f.config(&fakeMedia{}, &fakePeers{}, 0))

	events, cancel, err := hub.Subscribe(as("d", admin))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	hub.Close()
	cancel()

	for range events {
	}
	if _, _, err := hub.Subscribe(as("d", admin)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestHub_StopsEngineWhenLastSubscriberLeaves(t *testing.T) {
	f := newFixture(t)
	hub := NewHub(f.config(&fakeMedia{}, &fakePeers{}, 0))
	defer hub.Close()

	var cancels []func()
	for _, u := range []string{"a", "a", "b", "c"} {
		_, cancel, err := hub.Subscribe(as(u, customer))
		if err != nil {
			t.Fatalf("subscribe %s: %v", u, err)
		}
		cancels = append(cancels, cancel)
	}
	if n := hub.Engines(); n != 3 {
		t.Fatalf("expected one engine per user, got %d", n)
	}

	cancels[0]()
	if n := hub.Engines(); n != 3 {
		t.Fatalf("a still has a subscriber, expected 3 engines, got %d", n)
	}
	for _, cancel := range cancels[1:] {
		cancel()
	}
	if n := hub.Engines(); n != 0 {
		t.Fatalf("expected no engines after every subscriber left, got %d", n)
	}

	// a returning user gets a working engine again
	if _, cancel, err := hub.Subscribe(as("a", customer)); err != nil {
		t.Fatalf("resubscribe: %v", err)
	} else {
		cancel()
	}
}

func TestHub_LeavingMidCallEndsTheCall(t *testing.T) {
	f := newFixture(t)
	hub := NewHub(f.config(&fakeMedia{}, &fakePeers{}, 0))
	defer hub.Close()

	d := as("d", admin)
	events, cancel, err := hub.Subscribe(d)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sess, err := hub.Initiate(as("c", customer), "d", calls.CallTypeAudio)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	waitEvent(t, events, EventIncoming)
	if _, err := hub.Accept(d, sess.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	f.clock.Advance(10 * time.Second)

	cancel()

	got := f.session(t, sess.ID)
	if got.Status != calls.StatusEnded || got.DurationSeconds == nil || *got.DurationSeconds != 10 {
		t.Fatalf("expected ended session with 10s, got %+v", got)
	}
	if n := len(f.logs.Entries()); n != 1 {
		t.Fatalf("expected one call log, got %d", n)
	}
	// the caller learns of the end from the feed and is released too
	eventually(t, func() bool { return hub.Engines() == 0 }, "caller engine to stop")
}
