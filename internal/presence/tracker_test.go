package presence

import (
	"context"
	"testing"
	"time"
)

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func statusOf(repo *MemoryRepo, userID string) Status {
	p, err := repo.Get(context.Background(), userID)
	if err != nil {
		return ""
	}
	return p.Status
}

func TestTracker_Lifecycle(t *testing.T) {
	repo := NewMemoryRepo()
	tr := NewTracker(NewService(repo, nil), 10*time.Millisecond, nil)

	tr.Start(userCtx("u1"))
	if got := statusOf(repo, "u1"); got != StatusOnline {
		t.Fatalf("expected online after start, got %q", got)
	}

	// heartbeat keeps writing while online
	before := repo.Writes()
	eventually(t, func() bool { return repo.Writes() >= before+3 }, "heartbeat writes")

	tr.SetVisible(false)
	if got := statusOf(repo, "u1"); got != StatusAway {
		t.Fatalf("expected away when hidden, got %q", got)
	}
	// no heartbeat while away
	writes := repo.Writes()
	time.Sleep(50 * time.Millisecond)
	if repo.Writes() != writes || statusOf(repo, "u1") != StatusAway {
		t.Fatalf("heartbeat must pause while away")
	}

	tr.SetVisible(true)
	if got := statusOf(repo, "u1"); got != StatusOnline {
		t.Fatalf("expected online when visible again, got %q", got)
	}

	tr.Stop()
	tr.Stop()
	if got := statusOf(repo, "u1"); got != StatusOffline {
		t.Fatalf("expected offline after stop, got %q", got)
	}
}

func TestTracker_SwallowsFailures(t *testing.T) {
	repo := NewMemoryRepo()
	repo.FailWrites = true
	tr := NewTracker(NewService(repo, nil), time.Hour, nil)

	tr.Start(userCtx("u1"))
	tr.SetVisible(false)
	tr.Stop()
	if repo.Writes() != 3 {
		t.Fatalf("expected 3 attempted writes, got %d", repo.Writes())
	}
}

func TestTracker_NoIdentityIsNoop(t *testing.T) {
	repo := NewMemoryRepo()
	tr := NewTracker(NewService(repo, nil), time.Hour, nil)
	tr.Start(context.Background())
	tr.Stop()
	if repo.Rows() != 0 {
		t.Fatalf("expected no rows without identity")
	}
}

func TestTracker_VisibilityReturnsToHeldStatus(t *testing.T) {
	repo := NewMemoryRepo()
	tr := NewTracker(NewService(repo, nil), time.Hour, nil)
	tr.Start(userCtx("u1"))
	defer tr.Stop()

	tr.SetStatus(StatusInCall)
	tr.SetVisible(false)
	if got := statusOf(repo, "u1"); got != StatusAway {
		t.Fatalf("expected away when hidden, got %q", got)
	}
	tr.SetVisible(true)
	if got := statusOf(repo, "u1"); got != StatusInCall {
		t.Fatalf("expected in_call to survive visibility, got %q", got)
	}

	// a call ending while hidden stays away until the tab is visible
	tr.SetVisible(false)
	tr.ClearStatus(StatusInCall)
	if got := statusOf(repo, "u1"); got != StatusAway {
		t.Fatalf("expected away after call ended while hidden, got %q", got)
	}
	tr.SetVisible(true)
	if got := statusOf(repo, "u1"); got != StatusOnline {
		t.Fatalf("expected online once visible with no call, got %q", got)
	}

	tr.SetStatus(StatusBusy)
	tr.ClearStatus(StatusInCall)
	if got := statusOf(repo, "u1"); got != StatusBusy {
		t.Fatalf("clearing another status must keep busy, got %q", got)
	}
}
