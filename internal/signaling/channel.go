package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"crm-calls/internal/metrics"
)

// Handler processes one inbound message. Errors are logged by the channel and
// never end the subscription.
type Handler func(ctx context.Context, msg Message) error

// Channel is one engine's view of the signaling topic.
type Channel struct {
	bus     Bus
	topic   string
	log     *slog.Logger
	metrics *metrics.Collectors

	mu       sync.RWMutex
	handlers map[Kind][]Handler
	closed   bool

	cancelSub func()
	cancelCtx context.CancelFunc
}

// Open subscribes to topic and starts dispatching. Handlers registered after
// Open only see messages that arrive after registration.
func Open(ctx context.Context, bus Bus, topic string, log *slog.Logger, m *metrics.Collectors) (*Channel, error) {
	if log == nil {
		log = slog.Default()
	}
	ch, cancelSub, err := bus.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("signaling: subscribe %s: %w", topic, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		bus:       bus,
		topic:     topic,
		log:       log.With("topic", topic),
		metrics:   m,
		handlers:  make(map[Kind][]Handler),
		cancelSub: cancelSub,
		cancelCtx: cancel,
	}
	go c.loop(loopCtx, ch)
	return c, nil
}

func (c *Channel) OnMessage(kind Kind, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = append(c.handlers[kind], h)
}

// Send broadcasts msg. Nothing is retried; a failed publish is returned to the caller.
func (c *Channel) Send(ctx context.Context, msg Message) error {
	payload, err := Encode(msg)
	if err != nil {
		c.metrics.SignalingMessage(string(msg.Kind), "out", false)
		return err
	}
	if err := c.bus.Publish(ctx, c.topic, payload); err != nil {
		c.metrics.SignalingMessage(string(msg.Kind), "out", false)
		return fmt.Errorf("signaling: send %s: %w", msg.Kind, err)
	}
	c.metrics.SignalingMessage(string(msg.Kind), "out", true)
	return nil
}

// Close unsubscribes. It does not wait for an in-flight handler, so it is safe
// to call from inside one.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancelCtx()
	c.cancelSub()
}

func (c *Channel) loop(ctx context.Context, in <-chan []byte) {
	for payload := range in {
		c.dispatch(ctx, payload)
	}
}

func (c *Channel) dispatch(ctx context.Context, payload []byte) {
	msg, err := Decode(payload)
	if err != nil {
		c.metrics.SignalingMessage("unknown", "in", false)
		c.log.Warn("dropping signaling message", "err", err)
		return
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	hs := append([]Handler(nil), c.handlers[msg.Kind]...)
	c.mu.RUnlock()

	ok := true
	for _, h := range hs {
		if err := c.safeCall(ctx, h, msg); err != nil {
			ok = false
			c.log.Warn("signaling handler failed",
				"kind", msg.Kind, "session_id", msg.SessionID, "from", msg.From, "err", err)
		}
	}
	c.metrics.SignalingMessage(string(msg.Kind), "in", ok)
}

func (c *Channel) safeCall(ctx context.Context, h Handler, msg Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h(ctx, msg)
}
