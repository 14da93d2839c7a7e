package calls

import (
	"context"
	"testing"
	"time"

	"crm-calls/internal/auth"
	"crm-calls/internal/calllog"
	"crm-calls/internal/signaling"
)

func TestFeed_BroadcastsStoreWrites(t *testing.T) {
	bus := signaling.NewMemoryBus()
	feed := NewFeed(bus, "call-sessions", nil)

	got := make(chan Session, 8)
	cancel, err := feed.Subscribe(context.Background(), func(s Session) { got <- s })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	store := NewStore(NewMemoryRepo(), calllog.NewService(calllog.NewMemoryRepo()), WithNotifier(feed))
	sess, err := store.Create(as("c"), "d", CallTypeAudio, auth.UserTypeCustomer)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Decline(as("d"), sess.ID); err != nil {
		t.Fatalf("decline: %v", err)
	}

	want := []Status{StatusPending, StatusDeclined}
	for _, w := range want {
		select {
		case s := <-got:
			if s.ID != sess.ID || s.Status != w {
				t.Fatalf("expected %s for %s, got %+v", w, sess.ID, s)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", w)
		}
	}
}
