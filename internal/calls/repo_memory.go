package calls

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and early development.
type MemoryRepo struct {
	mu       sync.Mutex
	sessions map[string]Session

	// FailWrites makes Insert and Update fail, to exercise persistence errors.
	FailWrites bool
}

var errMemoryWrite = errors.New("memory repo: write rejected")

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{sessions: map[string]Session{}} }

func (r *MemoryRepo) Insert(ctx context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites {
		return errMemoryWrite
	}
	if _, ok := r.sessions[s.ID]; ok {
		return errors.New("memory repo: duplicate id")
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepo) Update(ctx context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites {
		return errMemoryWrite
	}
	if _, ok := r.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *MemoryRepo) UpdateFrom(ctx context.Context, s Session, from []Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites {
		return false, errMemoryWrite
	}
	cur, ok := r.sessions[s.ID]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if cur.Status == st {
			r.sessions[s.ID] = s
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepo) ListByStatusBefore(ctx context.Context, statuses []Status, before time.Time) ([]Session, error) {
	want := make(map[Status]struct{}, len(statuses))
	for _, st := range statuses {
		want[st] = struct{}{}
	}
	return r.filter(func(s Session) bool {
		_, ok := want[s.Status]
		return ok && s.CreatedAt.Before(before)
	}), nil
}

func (r *MemoryRepo) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]Session, error) {
	return r.filter(func(s Session) bool {
		return !s.CreatedAt.Before(from) && s.CreatedAt.Before(to)
	}), nil
}

func (r *MemoryRepo) filter(keep func(Session) bool) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0)
	for _, s := range r.sessions {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
