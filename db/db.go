// Package db persists a history of recording runs in Postgres. It is optional:
// the recorder only opens a connection when DB_DSN is set.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens and pings a Postgres connection for dsn.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// Migrate applies idempotent schema changes for the run history table.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS recording_runs (
			run_id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL,
			video_id TEXT,
			channel_title TEXT,
			title TEXT,
			phase TEXT NOT NULL,
			attempts INTEGER DEFAULT 0,
			outcome TEXT,
			exit_code INTEGER,
			error TEXT,
			started_at TIMESTAMPTZ DEFAULT NOW(),
			found_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ
		)`,
		`ALTER TABLE recording_runs ADD COLUMN IF NOT EXISTS downloader_status TEXT`,
		`CREATE INDEX IF NOT EXISTS idx_recording_runs_channel ON recording_runs(channel_id, started_at)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}
