package calllog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for call log entries.
//
// It MUST be append-only. Append of a second entry for the same session is a
// silent no-op, not an error.
type Repository interface {
	Append(ctx context.Context, e Entry) error
	GetBySession(ctx context.Context, sessionID string) (Entry, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]Entry, error)
}

var (
	ErrInvalidEntry = errors.New("calllog: invalid entry")
	ErrNotFound     = errors.New("calllog: entry not found")
)

// Service stamps ids and creation times before handing entries to the repository.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// WithClock overrides the time source; used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

func (s *Service) Append(ctx context.Context, e Entry) error {
	if s.repo == nil {
		return errors.New("calllog: repository not configured")
	}
	if e.CallSessionID == "" || e.CallerID == "" || e.CalleeID == "" {
		return ErrInvalidEntry
	}
	if e.DurationSeconds < 0 {
		return ErrInvalidEntry
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) ForSession(ctx context.Context, sessionID string) (Entry, error) {
	return s.repo.GetBySession(ctx, sessionID)
}
