package reporting

import (
	"context"
	"time"

	"crm-calls/internal/calllog"
	"crm-calls/internal/calls"
)

// StoreRepo reads straight from the session and call log repositories.
type StoreRepo struct {
	sessions calls.Repository
	logs     calllog.Repository
}

func NewStoreRepo(sessions calls.Repository, logs calllog.Repository) *StoreRepo {
	return &StoreRepo{sessions: sessions, logs: logs}
}

func (r *StoreRepo) ListSessions(ctx context.Context, from, to time.Time) ([]calls.Session, error) {
	return r.sessions.ListCreatedBetween(ctx, from, to)
}

func (r *StoreRepo) ListCallLogs(ctx context.Context, from, to time.Time) ([]calllog.Entry, error) {
	return r.logs.ListBetween(ctx, from, to)
}
