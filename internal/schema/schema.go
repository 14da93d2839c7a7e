// Package schema owns the DDL for call_sessions, call_logs and user_presence.
package schema

import (
	"context"
	_ "embed"

	"crm-calls/pkg/utils"

	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var ddl string

// Apply creates missing tables and indexes. Safe to run on every start.
func Apply(ctx context.Context, db *sqlx.DB) error {
	return utils.Migrate(ctx, db, ddl)
}
