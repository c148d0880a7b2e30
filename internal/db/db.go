// Package db provides SQLite storage for mailtasks: run statistics and the
// cross-process run lock.
package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/daviddao/mailtasks/internal/types"
)

// DB wraps a SQLite connection for mailtasks operations.
type DB struct {
	conn *sqlx.DB
	path string
}

// Open opens (or creates) a mailtasks database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	conn, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Now returns the current time as an ISO 8601 string.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// --- Run statistics ---

// RecordRun inserts the statistics row for a finished run.
func (d *DB) RecordRun(ctx context.Context, r *types.RunRecord) error {
	_, err := d.conn.NamedExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, threads, processed, skipped, failed, error)
		VALUES (:id, :started_at, :finished_at, :threads, :processed, :skipped, :failed, :error)`, r)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first.
func (d *DB) RecentRuns(ctx context.Context, limit int) ([]*types.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []*types.RunRecord
	err := d.conn.SelectContext(ctx, &runs, `
		SELECT id, started_at, finished_at, threads, processed, skipped, failed, error
		FROM runs
		ORDER BY started_at DESC, finished_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Totals aggregates every recorded run.
type Totals struct {
	Runs      int    `db:"runs" json:"runs"`
	Threads   int    `db:"threads" json:"threads"`
	Processed int    `db:"processed" json:"processed"`
	Skipped   int    `db:"skipped" json:"skipped"`
	Failed    int    `db:"failed" json:"failed"`
	LastRun   string `db:"last_run" json:"last_run,omitempty"`
}

// RunTotals returns aggregate counts across all runs.
func (d *DB) RunTotals(ctx context.Context) (*Totals, error) {
	var t Totals
	err := d.conn.GetContext(ctx, &t, `
		SELECT COUNT(*) AS runs,
		       COALESCE(SUM(threads), 0) AS threads,
		       COALESCE(SUM(processed), 0) AS processed,
		       COALESCE(SUM(skipped), 0) AS skipped,
		       COALESCE(SUM(failed), 0) AS failed,
		       COALESCE(MAX(started_at), '') AS last_run
		FROM runs`)
	if err != nil {
		return nil, fmt.Errorf("run totals: %w", err)
	}
	return &t, nil
}
