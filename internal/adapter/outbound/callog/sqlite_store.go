// Package callog provides SQLite-backed persistence for the relay's call
// log. Records are written in transactions by the async call-log worker.
package callog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/toolbridge/toolbridge/internal/domain/calllog"
)

// SQLiteStore implements calllog.Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn and runs migrations.
// An in-memory database can be requested with ":memory:".
func Open(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS call_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			session_id TEXT NOT NULL,
			caller_id TEXT NOT NULL,
			method TEXT NOT NULL,
			tool_name TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			error_code INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_log_session ON call_log(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_call_log_timestamp ON call_log(timestamp)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// Append writes records in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, records ...calllog.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO call_log (timestamp, session_id, caller_id, method, tool_name, duration_ms, outcome, error_code)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx,
			rec.Timestamp.UTC().Format(time.RFC3339Nano),
			rec.SessionID,
			rec.CallerID,
			rec.Method,
			rec.ToolName,
			rec.DurationMs,
			string(rec.Outcome),
			rec.ErrorCode,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]calllog.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, session_id, caller_id, method, tool_name, duration_ms, outcome, error_code
		 FROM call_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query call log: %w", err)
	}
	defer rows.Close()

	var out []calllog.Record
	for rows.Next() {
		var rec calllog.Record
		var ts, outcome string
		if err := rows.Scan(&ts, &rec.SessionID, &rec.CallerID, &rec.Method, &rec.ToolName, &rec.DurationMs, &outcome, &rec.ErrorCode); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if parsed, perr := time.Parse(time.RFC3339Nano, ts); perr == nil {
			rec.Timestamp = parsed
		}
		rec.Outcome = calllog.Outcome(outcome)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Flush is a no-op; Append commits synchronously.
func (s *SQLiteStore) Flush(ctx context.Context) error { return nil }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
