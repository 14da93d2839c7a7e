package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"crm-calls/internal/auth"
	"crm-calls/internal/calllog"

	"github.com/google/uuid"
)

// Notifier receives every row the store writes. It stands in for the
// backend change feed; delivery is best-effort.
type Notifier interface {
	SessionChanged(ctx context.Context, s Session)
}

// Store owns call_sessions and writes the companion call_logs entry when a call ends.
//
// Writes are read-modify-write without row locks. Two participants updating
// the same session concurrently race and the last write wins; the transition
// table only guards against a writer that read a stale status.
type Store struct {
	repo     Repository
	logs     *calllog.Service
	notifier Notifier
	log      *slog.Logger
	clock    func() time.Time
}

type StoreOption func(*Store)

func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) { s.clock = clock }
}

func WithNotifier(n Notifier) StoreOption {
	return func(s *Store) { s.notifier = n }
}

func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

func NewStore(repo Repository, logs *calllog.Service, opts ...StoreOption) *Store {
	s := &Store{repo: repo, logs: logs, log: slog.Default(), clock: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) now() time.Time { return s.clock().UTC() }

// Create inserts a pending session with the authenticated user as caller.
func (s *Store) Create(ctx context.Context, calleeID string, callType CallType, callerType auth.UserType) (Session, error) {
	callerID, err := auth.UserID(ctx)
	if err != nil {
		return Session{}, err
	}
	if calleeID == "" || calleeID == callerID {
		return Session{}, fmt.Errorf("%w: callee must be another user", ErrInvalidArgument)
	}
	if !callType.Valid() {
		return Session{}, fmt.Errorf("%w: call_type %q", ErrInvalidArgument, callType)
	}
	if !callerType.Valid() {
		return Session{}, fmt.Errorf("%w: caller_type %q", ErrInvalidArgument, callerType)
	}

	now := s.now()
	sess := Session{
		ID:         uuid.NewString(),
		CallerID:   callerID,
		CalleeID:   calleeID,
		CallType:   callType,
		Status:     StatusPending,
		CallerType: callerType,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Insert(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("%w: create session: %w", ErrPersistence, err)
	}
	s.notify(ctx, sess)
	return sess, nil
}

// Get returns a session the authenticated user participates in.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return Session{}, err
	}
	sess, err := s.load(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !sess.Involves(userID) {
		return Session{}, ErrNotParticipant
	}
	return sess, nil
}

// UpdateStatus moves a session to next. Writing the status it already has is
// a no-op, so repeated deliveries of the same event are harmless.
// Entering active stamps start_time; endTime, when given, is stored as end_time.
func (s *Store) UpdateStatus(ctx context.Context, id string, next Status, endTime *time.Time) (Session, error) {
	if !next.Valid() {
		return Session{}, fmt.Errorf("%w: status %q", ErrInvalidArgument, next)
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.Status == next {
		return sess, nil
	}
	if !sess.Status.CanTransitionTo(next) {
		return sess, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sess.Status, next)
	}

	now := s.now()
	sess.Status = next
	if next == StatusActive && sess.StartTime == nil {
		sess.StartTime = &now
	}
	if endTime != nil {
		end := endTime.UTC()
		sess.EndTime = &end
	}
	sess.UpdatedAt = now
	if err := s.repo.Update(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("%w: update session: %w", ErrPersistence, err)
	}
	s.notify(ctx, sess)
	return sess, nil
}

// Decline records a rejected call. No call log entry is written.
func (s *Store) Decline(ctx context.Context, id string) (Session, error) {
	now := s.now()
	return s.UpdateStatus(ctx, id, StatusDeclined, &now)
}

// MarkMissed records an unanswered call. No call log entry is written.
func (s *Store) MarkMissed(ctx context.Context, id string) (Session, error) {
	now := s.now()
	return s.UpdateStatus(ctx, id, StatusMissed, &now)
}

// Finalize ends the call: end_time is now and duration_seconds is the whole
// seconds since start_time (0 if the call never became active). Exactly one
// call log entry is appended.
//
// A session that is already terminal is returned unchanged. For an ended
// session the log append is retried, which heals a previous failure between
// the two writes; the log's unique session key keeps it single.
func (s *Store) Finalize(ctx context.Context, id string) (Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.Status.IsTerminal() {
		if sess.Status == StatusEnded {
			if err := s.appendLog(ctx, sess); err != nil {
				return sess, err
			}
		}
		return sess, nil
	}

	now := s.now()
	duration := 0
	if sess.StartTime != nil {
		duration = int(now.Sub(*sess.StartTime) / time.Second)
		if duration < 0 {
			duration = 0
		}
	}
	sess.Status = StatusEnded
	sess.EndTime = &now
	sess.DurationSeconds = &duration
	sess.UpdatedAt = now
	if err := s.repo.Update(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("%w: finalize session: %w", ErrPersistence, err)
	}
	s.notify(ctx, sess)

	if err := s.appendLog(ctx, sess); err != nil {
		return sess, err
	}
	return sess, nil
}

func (s *Store) appendLog(ctx context.Context, sess Session) error {
	if s.logs == nil {
		return nil
	}
	duration := 0
	if sess.DurationSeconds != nil {
		duration = *sess.DurationSeconds
	}
	err := s.logs.Append(ctx, calllog.Entry{
		CallSessionID:   sess.ID,
		CallerID:        sess.CallerID,
		CalleeID:        sess.CalleeID,
		CallType:        string(sess.CallType),
		DurationSeconds: duration,
	})
	if err != nil {
		return fmt.Errorf("%w: append call log: %w", ErrPersistence, err)
	}
	return nil
}

// ReapStale marks pending or ringing sessions created before cutoff as missed.
// It runs without a user identity and returns how many rows it moved. The
// write is conditional on the row still being open, so a session answered
// after the listing keeps its active status.
func (s *Store) ReapStale(ctx context.Context, cutoff time.Time) (int, error) {
	open := []Status{StatusPending, StatusRinging}
	stale, err := s.repo.ListByStatusBefore(ctx, open, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: list stale sessions: %w", ErrPersistence, err)
	}
	moved := 0
	for _, sess := range stale {
		now := s.now()
		sess.Status = StatusMissed
		sess.EndTime = &now
		sess.UpdatedAt = now
		ok, err := s.repo.UpdateFrom(ctx, sess, open)
		if err != nil {
			s.log.Warn("reap session failed", "session_id", sess.ID, "err", err)
			continue
		}
		if !ok {
			s.log.Debug("session moved on before reap", "session_id", sess.ID)
			continue
		}
		s.notify(ctx, sess)
		moved++
	}
	return moved, nil
}

func (s *Store) load(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, fmt.Errorf("%w: session id required", ErrInvalidArgument)
	}
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("%w: load session: %w", ErrPersistence, err)
	}
	return sess, nil
}

func (s *Store) notify(ctx context.Context, sess Session) {
	if s.notifier != nil {
		s.notifier.SessionChanged(ctx, sess)
	}
}
