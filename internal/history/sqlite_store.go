// Package history keeps a durable audit log of executed actions. The log is
// advisory: operators use it for reporting, and a write failure never fails
// the action that produced the record.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/engagekit/engagekit/internal/models"
)

// SQLiteStore persists action records to SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Record is one logged action.
type Record struct {
	ID        string            `json:"id"`
	Platform  string            `json:"platform"`
	Action    string            `json:"action"`
	Family    string            `json:"family"`
	Target    string            `json:"target"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	StartedAt time.Time         `json:"startedAt"`
	Duration  time.Duration     `json:"duration"`
}

// NewSQLiteStore opens (or creates) the history database at dbPath.
// Pass ":memory:" for an in-memory database in tests.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	var connStr string
	if dbPath == ":memory:" {
		connStr = "file::memory:?cache=shared&_timeout=5000&_busy_timeout=5000"
	} else {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		}
		connStr = dbPath + "?_journal=WAL&_timeout=5000&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("action history store initialized", "path", dbPath)
	return store, nil
}

// migrate creates the necessary tables.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		platform TEXT NOT NULL,
		action TEXT NOT NULL,
		family TEXT NOT NULL,
		target TEXT NOT NULL DEFAULT '',
		success INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		detail_json TEXT NOT NULL DEFAULT '{}',
		started_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_actions_platform ON actions(platform);
	CREATE INDEX IF NOT EXISTS idx_actions_started_at ON actions(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Append writes one result to the log.
func (s *SQLiteStore) Append(ctx context.Context, result *models.ActionResult) error {
	detailJSON, err := json.Marshal(result.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}
	if result.Details == nil {
		detailJSON = []byte("{}")
	}

	success := 0
	if result.Success {
		success = 1
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO actions (id, platform, action, family, target, success, error, detail_json, started_at, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.ID,
		result.Platform,
		string(result.Action),
		string(result.Action.FamilyOf()),
		result.Target,
		success,
		result.Error,
		string(detailJSON),
		result.StartedAt.UTC().Format(time.RFC3339),
		result.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to append action record: %w", err)
	}

	s.logger.Debug("action recorded", "id", result.ID, "platform", result.Platform)
	return nil
}

// Recent returns up to limit records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, platform, action, family, target, success, error, detail_json, started_at, duration_ms
	FROM actions
	ORDER BY started_at DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list action records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var (
			rec        Record
			success    int
			detailJSON string
			startedAt  string
			durationMS int64
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Platform,
			&rec.Action,
			&rec.Family,
			&rec.Target,
			&success,
			&rec.Error,
			&detailJSON,
			&startedAt,
			&durationMS,
		); err != nil {
			return nil, fmt.Errorf("failed to scan action record: %w", err)
		}

		rec.Success = success == 1
		rec.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal([]byte(detailJSON), &rec.Details); err != nil {
			rec.Details = nil
		}

		records = append(records, &rec)
	}
	return records, rows.Err()
}

// CleanupOlderThan removes records started before the threshold and returns
// how many were deleted.
func (s *SQLiteStore) CleanupOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM actions WHERE started_at < ?",
		threshold.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup action records: %w", err)
	}

	count, _ := result.RowsAffected()
	if count > 0 {
		s.logger.Info("cleaned up old action records", "count", count)
	}
	return count, nil
}

// Close closes the database connection after a WAL checkpoint.
func (s *SQLiteStore) Close() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn("failed to checkpoint WAL before close", "error", err)
	}
	return s.db.Close()
}
