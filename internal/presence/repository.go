package presence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// Repository persists user_presence. Upsert is keyed by user id so a user never
// has more than one row.
type Repository interface {
	Upsert(ctx context.Context, p Presence) error
	Get(ctx context.Context, userID string) (Presence, error)
	ListByStatus(ctx context.Context, status Status) ([]Presence, error)
	MarkOfflineBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type SQLRepo struct {
	db *sqlx.DB
}

func NewSQLRepo(db *sqlx.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) Upsert(ctx context.Context, p Presence) error {
	q := r.db.Rebind(`INSERT INTO user_presence (user_id, user_type, status, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			user_type = excluded.user_type,
			status = excluded.status,
			last_seen = excluded.last_seen`)
	_, err := r.db.ExecContext(ctx, q, p.UserID, p.UserType, p.Status, p.LastSeen.UTC())
	return err
}

func (r *SQLRepo) Get(ctx context.Context, userID string) (Presence, error) {
	var p Presence
	q := r.db.Rebind(`SELECT user_id, user_type, status, last_seen FROM user_presence WHERE user_id = ?`)
	if err := r.db.GetContext(ctx, &p, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Presence{}, ErrNotFound
		}
		return Presence{}, err
	}
	return p, nil
}

func (r *SQLRepo) ListByStatus(ctx context.Context, status Status) ([]Presence, error) {
	out := make([]Presence, 0)
	q := r.db.Rebind(`SELECT user_id, user_type, status, last_seen FROM user_presence
		WHERE status = ? ORDER BY user_id`)
	if err := r.db.SelectContext(ctx, &out, q, status); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkOfflineBefore leaves last_seen untouched so the row still shows when the user was last heard from.
func (r *SQLRepo) MarkOfflineBefore(ctx context.Context, cutoff time.Time) (int, error) {
	q := r.db.Rebind(`UPDATE user_presence SET status = ? WHERE status = ? AND last_seen < ?`)
	res, err := r.db.ExecContext(ctx, q, StatusOffline, StatusOnline, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
