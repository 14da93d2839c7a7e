package rtc

import (
	"context"
	"sync"
	"time"

	"crm-calls/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Guard enforces one held call per user across every engine that user has.
type Guard interface {
	Acquire(ctx context.Context, userID string) (bool, error)
	Release(ctx context.Context, userID string) error
}

// RedisGuard shares the single-call slot between gateway instances. Each
// instance owns its leases; the TTL bounds one leaked by a crashed instance.
type RedisGuard struct {
	rdb   *redis.Client
	ttl   time.Duration
	owner string
}

func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	return &RedisGuard{rdb: rdb, ttl: ttl, owner: uuid.NewString()}
}

func guardKey(userID string) string { return "calls:active:" + userID }

func (g *RedisGuard) Acquire(ctx context.Context, userID string) (bool, error) {
	return utils.AcquireLease(ctx, g.rdb, guardKey(userID), g.owner, g.ttl)
}

func (g *RedisGuard) Release(ctx context.Context, userID string) error {
	return utils.ReleaseLease(ctx, g.rdb, guardKey(userID), g.owner)
}

// LocalGuard is the in-process guard used with the memory signaling backend.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]bool)}
}

func (g *LocalGuard) Acquire(ctx context.Context, userID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[userID] {
		return false, nil
	}
	g.held[userID] = true
	return true, nil
}

func (g *LocalGuard) Release(ctx context.Context, userID string) error {
	g.mu.Lock()
	delete(g.held, userID)
	g.mu.Unlock()
	return nil
}
