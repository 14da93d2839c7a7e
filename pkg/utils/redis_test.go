package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLease_ValidatesArguments(t *testing.T) {
	ctx := context.Background()
	if _, err := AcquireLease(ctx, nil, "k", "o", time.Minute); !errors.Is(err, errNilRedis) {
		t.Fatalf("expected nil client error, got %v", err)
	}
	if err := ReleaseLease(ctx, nil, "k", "o"); !errors.Is(err, errNilRedis) {
		t.Fatalf("expected nil client error, got %v", err)
	}
	if err := checkLease(nil, "k", ""); err == nil {
		t.Fatalf("expected error for empty owner")
	}
}

func TestRedisConfig_Defaults(t *testing.T) {
	cfg := RedisConfig{Addr: "localhost:6379"}.withDefaults()
	if cfg.PoolSize != 20 || cfg.PingTimeout != 2*time.Second || cfg.DialTimeout != 3*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
