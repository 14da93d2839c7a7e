package reporting

import (
	"context"
	"sync"
	"time"

	"crm-calls/internal/calllog"
	"crm-calls/internal/calls"
)

// MemoryRepo is a simple in-memory reporting repository for tests.
type MemoryRepo struct {
	mu sync.Mutex

	Sessions []calls.Session
	Logs     []calllog.Entry
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func (r *MemoryRepo) ListSessions(ctx context.Context, from, to time.Time) ([]calls.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.Session, 0)
	for _, s := range r.Sessions {
		if inRange(s.CreatedAt, from, to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListCallLogs(ctx context.Context, from, to time.Time) ([]calllog.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calllog.Entry, 0)
	for _, e := range r.Logs {
		if inRange(e.CreatedAt, from, to) {
			out = append(out, e)
		}
	}
	return out, nil
}
