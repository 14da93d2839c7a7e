// Package jobs runs the periodic maintenance the call subsystem relies on.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"crm-calls/internal/metrics"
	"crm-calls/pkg/logger"

	"github.com/robfig/cron/v3"
)

const runTimeout = 30 * time.Second

type SessionReaper interface {
	ReapStale(ctx context.Context, cutoff time.Time) (int, error)
}

type PresencePruner interface {
	PruneStale(ctx context.Context, cutoff time.Time) (int, error)
}

// Reaper moves orphaned pending/ringing sessions to missed and marks users
// whose heartbeat stopped as offline.
type Reaper struct {
	sessions      SessionReaper
	presence      PresencePruner
	staleCalls    time.Duration
	stalePresence time.Duration

	cron    *cron.Cron
	metrics *metrics.Collectors
	log     *slog.Logger
	clock   func() time.Time
}

type Option func(*Reaper)

func WithClock(clock func() time.Time) Option {
	return func(r *Reaper) { r.clock = clock }
}

func WithMetrics(m *metrics.Collectors) Option {
	return func(r *Reaper) { r.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Reaper) { r.log = logger.Component(l, "jobs") }
}

// WithCron supplies a preconfigured scheduler.
func WithCron(c *cron.Cron) Option {
	return func(r *Reaper) { r.cron = c }
}

func NewReaper(sessions SessionReaper, presence PresencePruner, staleCalls, stalePresence time.Duration, opts ...Option) *Reaper {
	r := &Reaper{
		sessions:      sessions,
		presence:      presence,
		staleCalls:    staleCalls,
		stalePresence: stalePresence,
		log:           logger.Component(nil, "jobs"),
		clock:         time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.cron == nil {
		r.cron = cron.New(cron.WithLocation(time.UTC))
	}
	return r
}

// RunOnce performs one sweep. Both halves run even if the other fails.
func (r *Reaper) RunOnce(ctx context.Context) (missed, offline int, err error) {
	now := r.clock().UTC()
	var errs []error

	if r.sessions != nil && r.staleCalls > 0 {
		missed, err = r.sessions.ReapStale(ctx, now.Add(-r.staleCalls))
		if err != nil {
			errs = append(errs, fmt.Errorf("reap sessions: %w", err))
		}
		r.metrics.Reaped("call_session", missed)
	}
	if r.presence != nil && r.stalePresence > 0 {
		offline, err = r.presence.PruneStale(ctx, now.Add(-r.stalePresence))
		if err != nil {
			errs = append(errs, fmt.Errorf("prune presence: %w", err))
		}
		r.metrics.Reaped("presence", offline)
	}
	return missed, offline, errors.Join(errs...)
}

// Start schedules RunOnce and starts the scheduler.
func (r *Reaper) Start(schedule string) error {
	_, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		missed, offline, err := r.RunOnce(ctx)
		if err != nil {
			r.log.Error("reaper run failed", "missed", missed, "offline", offline, "err", err)
			return
		}
		if missed > 0 || offline > 0 {
			r.log.Info("reaper run", "missed", missed, "offline", offline)
		}
	})
	if err != nil {
		return fmt.Errorf("jobs: schedule %q: %w", schedule, err)
	}
	r.cron.Start()
	r.log.Info("reaper scheduled", "schedule", schedule,
		"stale_calls", r.staleCalls.String(), "stale_presence", r.stalePresence.String())
	return nil
}

// Stop stops scheduling; the returned context is done when a running sweep finishes.
func (r *Reaper) Stop() context.Context {
	return r.cron.Stop()
}
