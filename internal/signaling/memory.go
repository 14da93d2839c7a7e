package signaling

import (
	"context"
	"errors"
	"sync"
)

var ErrBusClosed = errors.New("signaling: bus closed")

// MemoryBus is an in-process Bus for single-instance deployments and tests.
type MemoryBus struct {
	mu     sync.Mutex
	topics map[string]*fanout
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{topics: make(map[string]*fanout)}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	f := b.topics[topic]
	b.mu.Unlock()
	if f == nil {
		return nil
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.deliver(cp)
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, ErrBusClosed
	}
	f := b.topics[topic]
	if f == nil {
		f = newFanout()
		b.topics[topic] = f
	}
	ch := f.add()
	var once sync.Once
	cancel := func() {
		once.Do(func() { f.remove(ch) })
	}
	return ch, cancel, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, f := range b.topics {
		f.closeAll()
	}
	return nil
}
