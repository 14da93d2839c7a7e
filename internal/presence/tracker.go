package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const writeTimeout = 5 * time.Second

// Tracker drives one client's presence for the lifetime of its connection:
// online on Start, a heartbeat while online, away/online on visibility
// changes and offline on Stop.
//
// Writes are fire-and-forget. Failures, including a missing identity, are
// logged and never reach the caller.
type Tracker struct {
	svc      *Service
	interval time.Duration
	log      *slog.Logger

	// writeMu orders status changes and heartbeat writes so a stale
	// heartbeat can never overwrite a newer status.
	writeMu sync.Mutex

	mu      sync.Mutex
	ctx     context.Context
	status  Status
	// held is an explicit status (busy, in_call) that visibility returns to
	// instead of online.
	held    Status
	hidden  bool
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

func NewTracker(svc *Service, interval time.Duration, log *slog.Logger) *Tracker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		svc:      svc,
		interval: interval,
		log:      log,
		status:   StatusOffline,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start writes online and begins the heartbeat. ctx supplies the identity;
// its cancellation does not stop the tracker, Stop does.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.ctx = context.WithoutCancel(ctx)
	t.mu.Unlock()

	t.set(StatusOnline)
	go t.heartbeat()
}

// SetVisible maps a hidden client to away. A visible one returns to the held
// status, or online when none is held.
func (t *Tracker) SetVisible(visible bool) {
	t.mu.Lock()
	t.hidden = !visible
	next := t.held
	t.mu.Unlock()

	if !visible {
		t.set(StatusAway)
		return
	}
	if next == "" {
		next = StatusOnline
	}
	t.set(next)
}

// SetStatus records an explicit status such as busy or in_call and holds it
// across visibility changes. The heartbeat only refreshes online.
func (t *Tracker) SetStatus(status Status) {
	if !status.Valid() {
		t.log.Warn("ignoring invalid presence status", "status", status)
		return
	}
	t.mu.Lock()
	if status == StatusOnline {
		t.held = ""
	} else {
		t.held = status
	}
	t.mu.Unlock()
	t.set(status)
}

// ClearStatus drops a held status set by SetStatus. A visible client goes
// back to online; a hidden one stays away.
func (t *Tracker) ClearStatus(status Status) {
	t.mu.Lock()
	if t.held != status {
		t.mu.Unlock()
		return
	}
	t.held = ""
	hidden := t.hidden
	t.mu.Unlock()
	if !hidden {
		t.set(StatusOnline)
	}
}

func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Stop ends the heartbeat and writes offline. Safe to call more than once.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.started || t.stopped {
		t.stopped = true
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()

	close(t.stop)
	<-t.done
	t.set(StatusOffline)
}

func (t *Tracker) heartbeat() {
	defer close(t.done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			if t.Status() == StatusOnline {
				t.write(StatusOnline)
			}
			t.writeMu.Unlock()
		}
	}
}

func (t *Tracker) set(status Status) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.status = status
	t.mu.Unlock()
	t.write(status)
}

func (t *Tracker) write(status Status) {
	t.mu.Lock()
	base := t.ctx
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(base, writeTimeout)
	defer cancel()
	if _, err := t.svc.SetStatus(ctx, status); err != nil {
		t.log.Warn("presence update failed", "status", status, "err", err)
	}
}
