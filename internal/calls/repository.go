package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// Repository is the persistence contract for call_sessions.
//
// Update overwrites the whole row by id. There is no version column: concurrent
// writers race and the last write wins.
type Repository interface {
	Insert(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	Update(ctx context.Context, s Session) error
	// UpdateFrom writes s only while the stored status is one of from and
	// reports whether it did.
	UpdateFrom(ctx context.Context, s Session, from []Status) (bool, error)
	ListByStatusBefore(ctx context.Context, statuses []Status, before time.Time) ([]Session, error)
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]Session, error)
}

const sessionColumns = `id, caller_id, callee_id, call_type, status, caller_type,
	start_time, end_time, duration_seconds, created_at, updated_at`

type SQLRepo struct {
	db *sqlx.DB
}

func NewSQLRepo(db *sqlx.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) Insert(ctx context.Context, s Session) error {
	q := r.db.Rebind(`INSERT INTO call_sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.CallerID, s.CalleeID, s.CallType, s.Status, s.CallerType,
		utcPtr(s.StartTime), utcPtr(s.EndTime), s.DurationSeconds, s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	return err
}

func (r *SQLRepo) Get(ctx context.Context, id string) (Session, error) {
	var s Session
	q := r.db.Rebind(`SELECT ` + sessionColumns + ` FROM call_sessions WHERE id = ?`)
	if err := r.db.GetContext(ctx, &s, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return s, nil
}

func (r *SQLRepo) Update(ctx context.Context, s Session) error {
	q := r.db.Rebind(`UPDATE call_sessions
		SET status = ?, start_time = ?, end_time = ?, duration_seconds = ?, updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q,
		s.Status, utcPtr(s.StartTime), utcPtr(s.EndTime), s.DurationSeconds, s.UpdatedAt.UTC(), s.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLRepo) UpdateFrom(ctx context.Context, s Session, from []Status) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	q, args, err := sqlx.In(`UPDATE call_sessions
		SET status = ?, start_time = ?, end_time = ?, duration_seconds = ?, updated_at = ?
		WHERE id = ? AND status IN (?)`,
		s.Status, utcPtr(s.StartTime), utcPtr(s.EndTime), s.DurationSeconds, s.UpdatedAt.UTC(), s.ID, from)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLRepo) ListByStatusBefore(ctx context.Context, statuses []Status, before time.Time) ([]Session, error) {
	out := make([]Session, 0)
	if len(statuses) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(`SELECT `+sessionColumns+` FROM call_sessions
		WHERE status IN (?) AND created_at < ? ORDER BY created_at`, statuses, before.UTC())
	if err != nil {
		return nil, err
	}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLRepo) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]Session, error) {
	out := make([]Session, 0)
	q := r.db.Rebind(`SELECT ` + sessionColumns + ` FROM call_sessions
		WHERE created_at >= ? AND created_at < ? ORDER BY created_at`)
	if err := r.db.SelectContext(ctx, &out, q, from.UTC(), to.UTC()); err != nil {
		return nil, err
	}
	return out, nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
