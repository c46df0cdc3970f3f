// Package store provides storage backends for caller counter records. It
// supports pluggable backends including memory, SQLite, and Redis.
//
// Every backend implements conditional updates: Update succeeds only while
// the caller's record version matches the stored version, so concurrent
// admission decisions for one caller serialize instead of racing past the
// rate check.
package store

import (
	"context"
	"time"
)

// CounterRecord is the persisted admission state for one caller. Counters
// only ever increase and LastCallAt only moves forward; the gateway never
// decrements a field or deletes a record. Retention is left to the backend's
// own lifecycle policy.
type CounterRecord struct {
	// Identity is the caller key the record belongs to.
	Identity string `json:"identity"`

	// LastCallAt is the instant of the most recent accepted call.
	// The zero value means the caller has never been admitted.
	LastCallAt time.Time `json:"last_call_at"`

	// TotalCalls is the lifetime count of accepted calls.
	TotalCalls int64 `json:"total_calls"`

	// RateLimitErrors counts too-fast rejections. It never decays.
	RateLimitErrors int64 `json:"rate_limit_errors"`

	// Days lists the UTC dates (YYYY-MM-DD) with at least one accepted
	// call, in first-seen order.
	Days []string `json:"days,omitempty"`

	// Version is the optimistic-concurrency token managed by the store.
	// Pass it back unchanged on Update.
	Version int64 `json:"version"`
}

// Clone returns a deep copy of the record.
func (r *CounterRecord) Clone() *CounterRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Days != nil {
		out.Days = append([]string(nil), r.Days...)
	}
	return &out
}

// MarkDay records day in Days unless already present.
func (r *CounterRecord) MarkDay(day string) {
	for _, d := range r.Days {
		if d == day {
			return
		}
	}
	r.Days = append(r.Days, day)
}

// CounterStore is the persistence contract for caller records.
// Implementations must be safe for concurrent use.
type CounterStore interface {
	// Get retrieves the record for an identity.
	// Returns ErrNotFound if no record exists yet.
	Get(ctx context.Context, identity string) (*CounterRecord, error)

	// Create persists a brand-new record. The stored record gets
	// version 1. Returns ErrAlreadyExists if another writer created a
	// record for the same identity first.
	Create(ctx context.Context, rec *CounterRecord) error

	// Update persists rec conditionally: it succeeds only when
	// rec.Version matches the stored version, and bumps the stored
	// version by one. Returns ErrConflict when the record changed
	// underneath the caller and ErrNotFound when it does not exist.
	Update(ctx context.Context, rec *CounterRecord) error

	// CheckConnection verifies the store is reachable and healthy.
	CheckConnection(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// BackendType defines available store backends.
type BackendType string

const (
	// MemoryBackend is the in-memory store, for development and tests.
	MemoryBackend BackendType = "memory"

	// SQLiteBackend is the embedded durable store for single-node
	// deployments.
	SQLiteBackend BackendType = "sqlite"

	// RedisBackend is the shared store for multi-replica deployments.
	RedisBackend BackendType = "redis"
)

// StoreConfig contains configuration for creating a store.
type StoreConfig struct {
	// Backend specifies which store implementation to use.
	Backend BackendType

	// SQLite backend configuration.
	SQLite SQLiteStoreConfig

	// Redis backend configuration.
	Redis RedisStoreConfig
}

// SQLiteStoreConfig contains configuration for the SQLite store.
type SQLiteStoreConfig struct {
	// Path is the database file path.
	Path string
}

// RedisStoreConfig contains configuration for the Redis store.
type RedisStoreConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379").
	Address string

	// Password is the Redis password.
	Password string

	// Database is the Redis database number.
	Database int

	// KeyPrefix is the prefix for all counter keys (default: "caller:").
	KeyPrefix string

	// TTLSeconds optionally expires idle records. Zero disables expiry,
	// which is the documented default for counter records.
	TTLSeconds int
}
