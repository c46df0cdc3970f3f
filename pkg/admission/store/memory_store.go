package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of CounterStore, intended for
// development and tests. Records are never evicted: quota state that
// silently disappears would reopen the limits it exists to enforce.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*CounterRecord
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]*CounterRecord),
	}
}

// Get retrieves the record for an identity.
func (m *MemoryStore) Get(_ context.Context, identity string) (*CounterRecord, error) {
	if identity == "" {
		return nil, ErrInvalidInput
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.byID[identity]
	if !exists {
		return nil, ErrNotFound
	}

	// Return a copy
	return rec.Clone(), nil
}

// Create persists a brand-new record with version 1.
func (m *MemoryStore) Create(_ context.Context, rec *CounterRecord) error {
	if rec == nil || rec.Identity == "" {
		return ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[rec.Identity]; exists {
		return ErrAlreadyExists
	}

	stored := rec.Clone()
	stored.Version = 1
	m.byID[rec.Identity] = stored
	return nil
}

// Update persists rec if its version still matches the stored record.
func (m *MemoryStore) Update(_ context.Context, rec *CounterRecord) error {
	if rec == nil || rec.Identity == "" {
		return ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.byID[rec.Identity]
	if !exists {
		return ErrNotFound
	}
	if existing.Version != rec.Version {
		return ErrConflict
	}

	stored := rec.Clone()
	stored.Version = rec.Version + 1
	m.byID[rec.Identity] = stored
	return nil
}

// CheckConnection verifies the store is healthy.
func (m *MemoryStore) CheckConnection(_ context.Context) error {
	return nil
}

// Close releases resources held by the store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byID = nil
	return nil
}

// Count returns the current number of records (for testing).
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
