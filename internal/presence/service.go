package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-calls/internal/auth"
	"crm-calls/internal/metrics"
)

var (
	ErrInvalidStatus = errors.New("presence: invalid status")
	ErrNotFound      = errors.New("presence: no row for user")
	// ErrPersistence wraps a rejected presence read or write.
	ErrPersistence = errors.New("presence: persistence failure")
)

type Service struct {
	repo    Repository
	metrics *metrics.Collectors
	clock   func() time.Time
}

func NewService(repo Repository, m *metrics.Collectors) *Service {
	return &Service{repo: repo, metrics: m, clock: time.Now}
}

// WithClock overrides the time source; used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// SetStatus upserts the authenticated user's row and refreshes last_seen.
func (s *Service) SetStatus(ctx context.Context, status Status) (Presence, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return Presence{}, err
	}
	userType, err := auth.Type(ctx)
	if err != nil {
		return Presence{}, err
	}
	if !status.Valid() {
		return Presence{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	p := Presence{
		UserID:   userID,
		UserType: userType,
		Status:   status,
		LastSeen: s.clock().UTC(),
	}
	if err := s.repo.Upsert(ctx, p); err != nil {
		s.metrics.PresenceWrite(string(status), false)
		return Presence{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.metrics.PresenceWrite(string(status), true)
	return p, nil
}

// ListOnline returns every row whose status is online. Staleness is not
// checked here; PruneStale takes abandoned rows offline.
func (s *Service) ListOnline(ctx context.Context) ([]Presence, error) {
	rows, err := s.repo.ListByStatus(ctx, StatusOnline)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return rows, nil
}

func (s *Service) Get(ctx context.Context, userID string) (Presence, error) {
	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Presence{}, ErrNotFound
		}
		return Presence{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return p, nil
}

// PruneStale marks online users not heard from since before cutoff as
// offline. Only online is refreshed by the heartbeat, so other statuses are
// left for the client's own teardown to clear.
func (s *Service) PruneStale(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := s.repo.MarkOfflineBefore(ctx, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return n, nil
}
