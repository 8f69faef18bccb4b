// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package history keeps scenario results of past runs in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/onellm/proxycheck/internal/chatcheck"
)

// DefaultPath is the database used when none is configured.
const DefaultPath = "proxycheck.db"

const busyTimeoutMillis = 5000

// createdAtLayout keeps every fraction digit, so that created_at values sort
// chronologically as text. time.RFC3339Nano trims trailing zeros, which puts
// "05.5Z" before "05Z".
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Row is one stored scenario result.
type Row struct {
	RunID            string        `json:"runId"`
	Suite            string        `json:"suite"`
	Target           string        `json:"target"`
	Scenario         string        `json:"scenario"`
	Passed           bool          `json:"passed"`
	Failures         []string      `json:"failures,omitempty"`
	Err              string        `json:"error,omitempty"`
	Duration         time.Duration `json:"durationNs"`
	TimeToFirstChunk time.Duration `json:"timeToFirstChunkNs,omitempty"`
	Chunks           int           `json:"chunks,omitempty"`
	Content          string        `json:"content,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// Store persists run reports.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and migrates its schema.
//
// The database uses WAL mode, a busy timeout and a single connection, since
// SQLite serializes writes.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("history: create directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMillis),
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: %s: %w", pragma, err)
		}
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts one row per result of the report, in a single transaction.
func (s *Store) Save(ctx context.Context, report *chatcheck.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO results
		(run_id, suite, target, scenario, passed, failures, error, duration_ms, ttfc_ms, chunks, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("history: prepare insert: %w", err)
	}
	defer stmt.Close()

	createdAt := report.Finished.UTC().Format(createdAtLayout)
	for _, res := range report.Results {
		failures, err := json.Marshal(nonNil(res.Failures))
		if err != nil {
			return fmt.Errorf("history: encode failures: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			report.RunID, report.Suite, report.Target, res.Scenario, res.Passed,
			string(failures), res.Err, res.Duration.Milliseconds(), res.TimeToFirstChunk.Milliseconds(),
			res.ChunkCount, res.Content, createdAt,
		); err != nil {
			return fmt.Errorf("history: insert %s: %w", res.Scenario, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// Recent returns up to limit rows, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		run_id, suite, target, scenario, passed, failures, error, duration_ms, ttfc_ms, chunks, content, created_at
		FROM results ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r                  Row
			failures, created  string
			durationMs, ttfcMs int64
		)
		if err := rows.Scan(&r.RunID, &r.Suite, &r.Target, &r.Scenario, &r.Passed, &failures, &r.Err,
			&durationMs, &ttfcMs, &r.Chunks, &r.Content, &created); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(failures), &r.Failures); err != nil {
			return nil, fmt.Errorf("history: decode failures of %s: %w", r.Scenario, err)
		}
		if len(r.Failures) == 0 {
			r.Failures = nil
		}
		// RFC3339Nano parses both the fixed-width and the trimmed form.
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("history: parse created_at %q: %w", created, err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.TimeToFirstChunk = time.Duration(ttfcMs) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate: %w", err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
