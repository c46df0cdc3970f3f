package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gsbdarc/survey-chat-gateway/pkg/observability/logging"
)

// RedisStore implements CounterStore on Redis, for deployments where several
// gateway replicas share caller counters.
//
// Records are stored as JSON under {prefix}{identity}. Conditional updates
// run inside WATCH/MULTI/EXEC: when the key changes between the read and the
// commit, Redis aborts the transaction and the update surfaces ErrConflict.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore creates a new Redis-backed counter store and verifies the
// connection before returning.
func NewRedisStore(config RedisStoreConfig) (*RedisStore, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "caller:"
	}

	var ttl time.Duration
	if config.TTLSeconds > 0 {
		ttl = time.Duration(config.TTLSeconds) * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.Database,
	})

	store := &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.CheckConnection(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logging.Infof("RedisStore connected to %s with prefix %q, ttl=%v",
		config.Address, keyPrefix, ttl)
	return store, nil
}

func (r *RedisStore) key(identity string) string {
	return r.keyPrefix + identity
}

// Get retrieves the record for an identity.
func (r *RedisStore) Get(ctx context.Context, identity string) (*CounterRecord, error) {
	if identity == "" {
		return nil, ErrInvalidInput
	}

	data, err := r.client.Get(ctx, r.key(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	var rec CounterRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	rec.Identity = identity
	return &rec, nil
}

// Create persists a brand-new record with version 1. SetNX guarantees only
// one concurrent creator wins.
func (r *RedisStore) Create(ctx context.Context, rec *CounterRecord) error {
	if rec == nil || rec.Identity == "" {
		return ErrInvalidInput
	}

	stored := rec.Clone()
	stored.Version = 1
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.key(rec.Identity), payload, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	if !created {
		return ErrAlreadyExists
	}
	return nil
}

// Update persists rec if its version still matches the stored value.
func (r *RedisStore) Update(ctx context.Context, rec *CounterRecord) error {
	if rec == nil || rec.Identity == "" {
		return ErrInvalidInput
	}

	key := r.key(rec.Identity)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get record: %w", err)
		}

		var current CounterRecord
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}
		if current.Version != rec.Version {
			return ErrConflict
		}

		next := rec.Clone()
		next.Version = rec.Version + 1
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

// CheckConnection verifies the store connection is healthy.
func (r *RedisStore) CheckConnection(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// Close releases resources held by the store.
func (r *RedisStore) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
