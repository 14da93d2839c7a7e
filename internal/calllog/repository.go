package calllog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLRepo stores entries in call_logs. Queries use ? placeholders and are
// rebound for the active driver.
type SQLRepo struct {
	db *sqlx.DB
}

func NewSQLRepo(db *sqlx.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) Append(ctx context.Context, e Entry) error {
	q := r.db.Rebind(`INSERT INTO call_logs
		(id, call_session_id, caller_id, callee_id, call_type, duration_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (call_session_id) DO NOTHING`)
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.CallSessionID, e.CallerID, e.CalleeID, e.CallType, e.DurationSeconds, e.CreatedAt.UTC())
	return err
}

func (r *SQLRepo) GetBySession(ctx context.Context, sessionID string) (Entry, error) {
	var e Entry
	q := r.db.Rebind(`SELECT id, call_session_id, caller_id, callee_id, call_type, duration_seconds, created_at
		FROM call_logs WHERE call_session_id = ?`)
	if err := r.db.GetContext(ctx, &e, q, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func (r *SQLRepo) ListBetween(ctx context.Context, from, to time.Time) ([]Entry, error) {
	out := make([]Entry, 0)
	q := r.db.Rebind(`SELECT id, call_session_id, caller_id, callee_id, call_type, duration_seconds, created_at
		FROM call_logs WHERE created_at >= ? AND created_at < ? ORDER BY created_at`)
	if err := r.db.SelectContext(ctx, &out, q, from.UTC(), to.UTC()); err != nil {
		return nil, err
	}
	return out, nil
}
