package rtc

import (
	"context"
	"testing"
	"time"
)

func TestLocalGuard_OneSlotPerUser(t *testing.T) {
	g := NewLocalGuard()
	ctx := context.Background()

	if ok, _ := g.Acquire(ctx, "u1"); !ok {
		t.Fatalf("first acquire must succeed")
	}
	if ok, _ := g.Acquire(ctx, "u1"); ok {
		t.Fatalf("second acquire for the same user must fail")
	}
	if ok, _ := g.Acquire(ctx, "u2"); !ok {
		t.Fatalf("other users are independent")
	}
	_ = g.Release(ctx, "u1")
	if ok, _ := g.Acquire(ctx, "u1"); !ok {
		t.Fatalf("acquire after release must succeed")
	}
}

func TestRedisGuard_NilClient(t *testing.T) {
	g := NewRedisGuard(nil, time.Hour)
	if _, err := g.Acquire(context.Background(), "u1"); err == nil {
		t.Fatalf("expected error for nil redis client")
	}
	if err := g.Release(context.Background(), "u1"); err == nil {
		t.Fatalf("expected error for nil redis client")
	}
	if guardKey("u1") != "calls:active:u1" {
		t.Fatalf("unexpected key %q", guardKey("u1"))
	}
}
