package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus broadcasts over Redis Pub/Sub so engines on different gateway
// instances see each other's messages. Each topic holds one Redis subscription
// per process, fanned out to local subscribers.
type RedisBus struct {
	rdb *redis.Client
	log *slog.Logger

	mu     sync.Mutex
	topics map[string]*redisTopic
	closed bool
}

type redisTopic struct {
	ps  *redis.PubSub
	out *fanout
}

func NewRedisBus(rdb *redis.Client, log *slog.Logger) *RedisBus {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBus{rdb: rdb, log: log, topics: make(map[string]*redisTopic)}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, ErrBusClosed
	}

	t := b.topics[topic]
	if t == nil {
		ps := b.rdb.Subscribe(context.Background(), topic)
		// Wait for the subscription confirmation so nothing published after
		// Subscribe returns is missed.
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return nil, nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
		}
		t = &redisTopic{ps: ps, out: newFanout()}
		b.topics[topic] = t
		go b.pump(topic, t)
	}

	ch := t.out.add()
	var once sync.Once
	cancel := func() {
		once.Do(func() { b.unsubscribe(topic, t, ch) })
	}
	return ch, cancel, nil
}

func (b *RedisBus) pump(topic string, t *redisTopic) {
	for msg := range t.ps.Channel() {
		if dropped := t.out.deliver([]byte(msg.Payload)); dropped > 0 {
			b.log.Warn("signaling subscriber buffer full, payload dropped", "topic", topic, "dropped", dropped)
		}
	}
	t.out.closeAll()
}

func (b *RedisBus) unsubscribe(topic string, t *redisTopic, ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.out.remove(ch) > 0 {
		return
	}
	if b.topics[topic] == t {
		delete(b.topics, topic)
	}
	if err := t.ps.Close(); err != nil {
		b.log.Warn("redis unsubscribe failed", "topic", topic, "err", err)
	}
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for topic, t := range b.topics {
		delete(b.topics, topic)
		_ = t.ps.Close()
	}
	return nil
}
