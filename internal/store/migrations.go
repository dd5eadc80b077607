package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the ledger tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS work_items (
		entity_id    TEXT PRIMARY KEY,
		run_id       TEXT NOT NULL,
		sample       TEXT NOT NULL,
		lane         TEXT NOT NULL,
		stage        TEXT NOT NULL,
		genome_build TEXT NOT NULL DEFAULT '',
		digest       TEXT NOT NULL,
		payload      TEXT NOT NULL,
		recorded_at  TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_work_items_run_id ON work_items(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_work_items_run_sample ON work_items(run_id, sample)`,
	`CREATE INDEX IF NOT EXISTS idx_work_items_genome_build ON work_items(genome_build)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
