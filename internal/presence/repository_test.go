package presence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"crm-calls/internal/schema"
	"crm-calls/pkg/utils"

	_ "modernc.org/sqlite"
)

func TestSQLRepo_UpsertAndPrune(t *testing.T) {
	ctx := context.Background()
	db, err := utils.OpenDatabase(ctx, utils.DriverSQLite, filepath.Join(t.TempDir(), "p.db"), utils.PoolConfig{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := schema.Apply(ctx, db); err != nil {
		t.Fatalf("schema: %v", err)
	}

	repo := NewSQLRepo(db)
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(repo, nil).WithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		now = now.Add(time.Second)
		if _, err := svc.SetStatus(userCtx("u1"), StatusOnline); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	var rows int
	if err := db.GetContext(ctx, &rows, `SELECT COUNT(*) FROM user_presence`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one row, got %d", rows)
	}
	p, err := repo.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !p.LastSeen.Equal(now) {
		t.Fatalf("expected last_seen %s, got %s", now, p.LastSeen)
	}

	online, err := svc.ListOnline(ctx)
	if err != nil || len(online) != 1 {
		t.Fatalf("list online: %+v err=%v", online, err)
	}

	if _, err := svc.SetStatus(userCtx("u2"), StatusInCall); err != nil {
		t.Fatalf("set in_call: %v", err)
	}

	n, err := svc.PruneStale(ctx, now.Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("prune: n=%d err=%v", n, err)
	}
	if p, _ := repo.Get(ctx, "u1"); p.Status != StatusOffline {
		t.Fatalf("expected offline after prune, got %s", p.Status)
	}
	if p, _ := repo.Get(ctx, "u2"); p.Status != StatusInCall {
		t.Fatalf("in_call row must not be pruned, got %s", p.Status)
	}
}
