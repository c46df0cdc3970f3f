package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/gsbdarc/survey-chat-gateway/pkg/observability/logging"
)

// SQLiteStore implements CounterStore on an embedded SQLite database. It is
// the durable default for single-node deployments: counters survive process
// restarts without requiring an external service.
//
// Conditional updates are a versioned UPDATE (WHERE identity AND version);
// zero affected rows means another writer committed first.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS caller_counters (
	identity          TEXT PRIMARY KEY,
	last_call_unix_ns INTEGER NOT NULL,
	total_calls       INTEGER NOT NULL,
	rate_limit_errors INTEGER NOT NULL,
	days              TEXT NOT NULL,
	version           INTEGER NOT NULL
);`

// NewSQLiteStore opens the database at the configured path, creating the
// file and schema if needed.
func NewSQLiteStore(config SQLiteStoreConfig) (*SQLiteStore, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	// WAL keeps readers off the writer's lock; the busy timeout queues
	// contending writers instead of failing them immediately.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", config.Path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logging.Infof("SQLiteStore opened at %s", config.Path)
	return &SQLiteStore{db: db}, nil
}

// Get retrieves the record for an identity.
func (s *SQLiteStore) Get(ctx context.Context, identity string) (*CounterRecord, error) {
	if identity == "" {
		return nil, ErrInvalidInput
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT last_call_unix_ns, total_calls, rate_limit_errors, days, version
		 FROM caller_counters WHERE identity = ?`, identity)

	var (
		lastNS   int64
		daysJSON string
	)
	rec := &CounterRecord{Identity: identity}
	err := row.Scan(&lastNS, &rec.TotalCalls, &rec.RateLimitErrors, &daysJSON, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	if lastNS > 0 {
		rec.LastCallAt = time.Unix(0, lastNS).UTC()
	}
	if err := json.Unmarshal([]byte(daysJSON), &rec.Days); err != nil {
		return nil, fmt.Errorf("failed to decode days: %w", err)
	}
	return rec, nil
}

// Create persists a brand-new record with version 1.
func (s *SQLiteStore) Create(ctx context.Context, rec *CounterRecord) error {
	if rec == nil || rec.Identity == "" {
		return ErrInvalidInput
	}

	days, err := marshalDays(rec.Days)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO caller_counters (identity, last_call_unix_ns, total_calls, rate_limit_errors, days, version)
		 VALUES (?, ?, ?, ?, ?, 1)`,
		rec.Identity, lastCallNS(rec), rec.TotalCalls, rec.RateLimitErrors, days)

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

// Update persists rec if its version still matches the stored row.
func (s *SQLiteStore) Update(ctx context.Context, rec *CounterRecord) error {
	if rec == nil || rec.Identity == "" {
		return ErrInvalidInput
	}

	days, err := marshalDays(rec.Days)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE caller_counters
		 SET last_call_unix_ns = ?, total_calls = ?, rate_limit_errors = ?, days = ?, version = version + 1
		 WHERE identity = ? AND version = ?`,
		lastCallNS(rec), rec.TotalCalls, rec.RateLimitErrors, days, rec.Identity, rec.Version)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		// Distinguish a stale version from a missing row.
		if _, getErr := s.Get(ctx, rec.Identity); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

// CheckConnection verifies the store connection is healthy.
func (s *SQLiteStore) CheckConnection(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// Close releases resources held by the store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func lastCallNS(rec *CounterRecord) int64 {
	if rec.LastCallAt.IsZero() {
		return 0
	}
	return rec.LastCallAt.UnixNano()
}

func marshalDays(days []string) (string, error) {
	if days == nil {
		days = []string{}
	}
	data, err := json.Marshal(days)
	if err != nil {
		return "", fmt.Errorf("failed to encode days: %w", err)
	}
	return string(data), nil
}
