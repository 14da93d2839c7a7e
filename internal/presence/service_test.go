package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"crm-calls/internal/auth"
)

func userCtx(id string) context.Context {
	return auth.WithIdentity(context.Background(), id, auth.UserTypeCustomer)
}

func TestSetStatus_RequiresIdentity(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	if _, err := svc.SetStatus(context.Background(), StatusOnline); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestSetStatus_UpsertsOneRowPerUser(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(repo, nil).WithClock(func() time.Time { return now })

	for i := 0; i < 5; i++ {
		now = now.Add(time.Second)
		if _, err := svc.SetStatus(userCtx("u1"), StatusOnline); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}
	if repo.Rows() != 1 {
		t.Fatalf("expected one row, got %d", repo.Rows())
	}
	p, err := svc.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !p.LastSeen.Equal(now) || p.UserType != auth.UserTypeCustomer {
		t.Fatalf("expected latest last_seen and user type, got %+v", p)
	}
}

func TestSetStatus_RejectsUnknownStatus(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	if _, err := svc.SetStatus(userCtx("u"), Status("asleep")); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestSetStatus_PersistenceFailure(t *testing.T) {
	repo := NewMemoryRepo()
	repo.FailWrites = true
	svc := NewService(repo, nil)
	if _, err := svc.SetStatus(userCtx("u"), StatusOnline); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestListOnline_FiltersByStatus(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	_, _ = svc.SetStatus(userCtx("a"), StatusOnline)
	_, _ = svc.SetStatus(userCtx("b"), StatusAway)
	_, _ = svc.SetStatus(userCtx("c"), StatusOnline)
	_, _ = svc.SetStatus(userCtx("c"), StatusInCall)

	online, err := svc.ListOnline(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(online) != 1 || online[0].UserID != "a" {
		t.Fatalf("expected only a online, got %+v", online)
	}
}

func TestPruneStale(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(repo, nil).WithClock(func() time.Time { return now })
	_, _ = svc.SetStatus(userCtx("old"), StatusOnline)
	now = now.Add(10 * time.Minute)
	_, _ = svc.SetStatus(userCtx("fresh"), StatusOnline)

	n, err := svc.PruneStale(context.Background(), now.Add(-90*time.Second))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned row, got %d", n)
	}
	if p, _ := svc.Get(context.Background(), "old"); p.Status != StatusOffline {
		t.Fatalf("expected old offline, got %s", p.Status)
	}
	if p, _ := svc.Get(context.Background(), "fresh"); p.Status != StatusOnline {
		t.Fatalf("expected fresh online, got %s", p.Status)
	}
}

func TestPruneStale_LeavesInCallAndAwayRows(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(repo, nil).WithClock(func() time.Time { return now })
	_, _ = svc.SetStatus(userCtx("talking"), StatusInCall)
	_, _ = svc.SetStatus(userCtx("hidden"), StatusAway)
	_, _ = svc.SetStatus(userCtx("gone"), StatusOnline)
	now = now.Add(91 * time.Second)

	n, err := svc.PruneStale(context.Background(), now.Add(-90*time.Second))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only the online row pruned, got %d", n)
	}
	if p, _ := svc.Get(context.Background(), "talking"); p.Status != StatusInCall {
		t.Fatalf("user in a call must stay in_call, got %s", p.Status)
	}
	if p, _ := svc.Get(context.Background(), "hidden"); p.Status != StatusAway {
		t.Fatalf("hidden tab must stay away, got %s", p.Status)
	}
	if p, _ := svc.Get(context.Background(), "gone"); p.Status != StatusOffline {
		t.Fatalf("stale online row must go offline, got %s", p.Status)
	}
}
