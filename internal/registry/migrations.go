package registry

import (
	"context"
	"database/sql"

	"github.com/gruntwork-io/clusterflow/internal/errors"
)

// schema contains the DDL for the registry tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS clusters (
		name             TEXT PRIMARY KEY,
		status           TEXT NOT NULL,
		handle           TEXT NOT NULL DEFAULT '',
		launched_at      INTEGER NOT NULL DEFAULT 0,
		last_use         INTEGER NOT NULL DEFAULT 0,
		autostop_minutes INTEGER NOT NULL DEFAULT 0,
		is_controller    INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_clusters_status ON clusters(status)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.WithStackTraceAndPrefix(err, "applying registry schema")
		}
	}

	return nil
}
