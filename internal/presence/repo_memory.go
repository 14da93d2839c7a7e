package presence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Presence

	// FailWrites makes Upsert fail, to exercise persistence errors.
	FailWrites bool
	writes     int
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]Presence{}} }

func (r *MemoryRepo) Upsert(ctx context.Context, p Presence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	if r.FailWrites {
		return errors.New("memory repo: write rejected")
	}
	r.rows[p.UserID] = p
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, userID string) (Presence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[userID]
	if !ok {
		return Presence{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) ListByStatus(ctx context.Context, status Status) ([]Presence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Presence, 0)
	for _, p := range r.rows {
		if p.Status == status {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *MemoryRepo) MarkOfflineBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, p := range r.rows {
		if p.Status == StatusOnline && p.LastSeen.Before(cutoff) {
			p.Status = StatusOffline
			r.rows[id] = p
			n++
		}
	}
	return n, nil
}

// Rows returns the number of stored rows.
func (r *MemoryRepo) Rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// Writes returns how many upserts were attempted.
func (r *MemoryRepo) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}
