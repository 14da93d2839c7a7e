// Package signaling carries WebRTC offers, answers and ICE candidates between
// negotiation engines over a broadcast topic.
package signaling

import (
	"context"
	"sync"
)

// Bus is a topic-based broadcast transport.
//
// Delivery is at-most-once and unpersisted: a subscriber that is not listening
// when a payload is published never sees it. Publishers receive their own
// payloads when they are also subscribed.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error)
	Close() error
}

const subscriberBuffer = 256

// fanout delivers payloads to local subscribers of one topic.
// A subscriber whose buffer is full drops the payload.
type fanout struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func newFanout() *fanout {
	return &fanout{subs: make(map[chan []byte]struct{})}
}

func (f *fanout) add() chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

// remove returns the number of subscribers left.
func (f *fanout) remove(ch chan []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[ch]; ok {
		delete(f.subs, ch)
		close(ch)
	}
	return len(f.subs)
}

// deliver returns how many subscribers dropped the payload.
func (f *fanout) deliver(payload []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	dropped := 0
	for ch := range f.subs {
		select {
		case ch <- payload:
		default:
			dropped++
		}
	}
	return dropped
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		delete(f.subs, ch)
		close(ch)
	}
}
