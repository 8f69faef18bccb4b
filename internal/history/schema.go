// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package history

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations[i] brings the schema from version i to i+1.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS results (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT    NOT NULL,
			suite       TEXT    NOT NULL,
			target      TEXT    NOT NULL,
			scenario    TEXT    NOT NULL,
			passed      INTEGER NOT NULL,
			failures    TEXT    NOT NULL DEFAULT '[]',
			error       TEXT    NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL,
			ttfc_ms     INTEGER NOT NULL DEFAULT 0,
			chunks      INTEGER NOT NULL DEFAULT 0,
			content     TEXT    NOT NULL DEFAULT '',
			created_at  TEXT    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_created ON results(created_at)`,
	},
}

// migrate applies the migrations newer than the recorded schema version.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("history: create schema_version: %w", err)
	}
	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("history: read schema version: %w", err)
	}
	for v := current; v < len(migrations); v++ {
		for _, stmt := range migrations[v] {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("history: migrate to %d: %w\nstatement: %s", v+1, err, stmt)
			}
		}
		if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", v+1); err != nil {
			return fmt.Errorf("history: record schema version: %w", err)
		}
	}
	return nil
}

// schemaVersion is the version a fully migrated database records.
func schemaVersion() int { return len(migrations) }
