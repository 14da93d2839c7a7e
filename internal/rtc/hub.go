package rtc

import (
	"context"
	"log/slog"
	"sync"

	"crm-calls/internal/auth"
	"crm-calls/internal/calls"
	"crm-calls/pkg/logger"
)

const (
	EventIncoming     = "incoming"
	EventRemoteStream = "remote_stream"
	EventEnded        = "ended"
	EventSession      = "session"
)

const eventBuffer = 32

// Event is what a connected client receives. Exactly one payload field is set.
type Event struct {
	Type         string         `json:"type"`
	Incoming     *Incoming      `json:"incoming,omitempty"`
	RemoteStream *RemoteStream  `json:"remote_stream,omitempty"`
	Ended        *Ended         `json:"ended,omitempty"`
	Session      *calls.Session `json:"session,omitempty"`
}

// Hub owns one engine per signed-in user and fans engine callbacks out to
// that user's event subscribers. Operations take the user from ctx.
//
// An engine lives while its user has a subscriber or holds a call. When the
// last subscriber leaves the engine is closed, ending any call it holds.
type Hub struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	engines map[string]*Engine
	subs    map[string]map[chan Event]struct{}
	closed  bool
	pending sync.WaitGroup
}

func NewHub(cfg Config) *Hub {
	return &Hub{
		cfg:     cfg,
		log:     logger.Component(cfg.Log, "rtc_hub"),
		engines: make(map[string]*Engine),
		subs:    make(map[string]map[chan Event]struct{}),
	}
}

func (h *Hub) Initiate(ctx context.Context, calleeID string, callType calls.CallType) (calls.Session, error) {
	e, err := h.engineFor(ctx)
	if err != nil {
		return calls.Session{}, err
	}
	defer h.evict(e, false)
	callerType, err := auth.Type(ctx)
	if err != nil {
		return calls.Session{}, err
	}
	return e.Initiate(ctx, calleeID, callType, callerType)
}

func (h *Hub) Accept(ctx context.Context, sessionID string) (calls.Session, error) {
	e, err := h.engineFor(ctx)
	if err != nil {
		return calls.Session{}, err
	}
	defer h.evict(e, false)
	return e.Accept(ctx, sessionID)
}

func (h *Hub) Decline(ctx context.Context, sessionID string) (calls.Session, error) {
	e, err := h.engineFor(ctx)
	if err != nil {
		return calls.Session{}, err
	}
	defer h.evict(e, false)
	return e.Decline(ctx, sessionID)
}

func (h *Hub) End(ctx context.Context) (calls.Session, error) {
	e, err := h.engineFor(ctx)
	if err != nil {
		return calls.Session{}, err
	}
	defer h.evict(e, false)
	return e.End(ctx)
}

func (h *Hub) Get(ctx context.Context, sessionID string) (calls.Session, error) {
	return h.cfg.Store.Get(ctx, sessionID)
}

// Subscribe starts the user's engine if needed and returns its event stream.
// Slow subscribers lose events rather than stall the engine.
func (h *Hub) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	ch := make(chan Event, eventBuffer)
	var e *Engine
	for e == nil {
		candidate, err := h.engineFor(ctx)
		if err != nil {
			return nil, nil, err
		}
		userID := candidate.UserID()

		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return nil, nil, ErrClosed
		}
		// evicted between lookup and registration; start a fresh one
		if h.engines[userID] == candidate {
			if h.subs[userID] == nil {
				h.subs[userID] = make(map[chan Event]struct{})
			}
			h.subs[userID][ch] = struct{}{}
			e = candidate
		}
		h.mu.Unlock()
	}
	userID := e.UserID()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[userID][ch]; ok {
				delete(h.subs[userID], ch)
				close(ch)
			}
			h.mu.Unlock()
			h.evict(e, true)
		})
	}
	return ch, cancel, nil
}

// Close ends every held call and closes all subscriber streams.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	engines := make([]*Engine, 0, len(h.engines))
	for _, e := range h.engines {
		engines = append(engines, e)
	}
	h.engines = map[string]*Engine{}
	h.mu.Unlock()

	for _, e := range engines {
		e.Close()
	}
	h.pending.Wait()

	h.mu.Lock()
	for userID, subs := range h.subs {
		for ch := range subs {
			close(ch)
		}
		delete(h.subs, userID)
	}
	h.mu.Unlock()
}

func (h *Hub) engineFor(ctx context.Context) (*Engine, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return nil, err
	}
	userType, err := auth.Type(ctx)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	if e := h.engines[userID]; e != nil {
		return e, nil
	}

	// The engine outlives the request that created it.
	e, err := NewEngine(context.WithoutCancel(ctx), userID, userType, h.cfg)
	if err != nil {
		return nil, err
	}
	e.OnIncoming(func(in Incoming) { h.publish(userID, Event{Type: EventIncoming, Incoming: &in}) })
	e.OnRemoteStream(func(rs RemoteStream) { h.publish(userID, Event{Type: EventRemoteStream, RemoteStream: &rs}) })
	e.OnEnded(func(end Ended) {
		h.publish(userID, Event{Type: EventEnded, Ended: &end})
		// OnEnded can run under the engine's operation lock; Close must not.
		h.evictLater(e)
	})
	e.OnSession(func(s calls.Session) { h.publish(userID, Event{Type: EventSession, Session: &s}) })
	h.engines[userID] = e
	h.log.Info("engine started", "user_id", userID, "user_type", userType)
	return e, nil
}

// Engines reports how many engines are running.
func (h *Hub) Engines() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.engines)
}

// evict closes e when its user has no subscribers left and, unless force is
// set, holds no call.
func (h *Hub) evict(e *Engine, force bool) {
	userID := e.UserID()
	h.mu.Lock()
	if h.closed || h.engines[userID] != e || len(h.subs[userID]) > 0 {
		h.mu.Unlock()
		return
	}
	if _, held := e.Current(); held && !force {
		h.mu.Unlock()
		return
	}
	delete(h.engines, userID)
	delete(h.subs, userID)
	h.mu.Unlock()

	e.Close()
	h.log.Info("engine stopped", "user_id", userID)
}

func (h *Hub) evictLater(e *Engine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		h.evict(e, false)
	}()
}

func (h *Hub) publish(userID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[userID] {
		select {
		case ch <- ev:
		default:
			h.log.Warn("dropping event for slow subscriber", "user_id", userID, "type", ev.Type)
		}
	}
}
