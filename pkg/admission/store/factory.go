package store

import (
	"fmt"

	"github.com/gsbdarc/survey-chat-gateway/pkg/observability/logging"
)

// NewStore creates a counter store from the configuration. An empty backend
// selects the in-memory store.
func NewStore(config StoreConfig) (CounterStore, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	switch config.Backend {
	case MemoryBackend, "":
		logging.Infof("Creating in-memory counter store")
		return NewMemoryStore(), nil

	case SQLiteBackend:
		logging.Infof("Creating SQLite counter store at %s", config.SQLite.Path)
		return NewSQLiteStore(config.SQLite)

	case RedisBackend:
		logging.Infof("Creating Redis counter store at %s", config.Redis.Address)
		return NewRedisStore(config.Redis)

	default:
		return nil, fmt.Errorf("unknown store backend type: %s (supported: memory, sqlite, redis)", config.Backend)
	}
}

// ValidateConfig validates the store configuration.
func ValidateConfig(config StoreConfig) error {
	switch config.Backend {
	case MemoryBackend, "":
		// Memory store has no required configuration
		return nil

	case SQLiteBackend:
		if config.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required for sqlite backend")
		}
		return nil

	case RedisBackend:
		if config.Redis.Address == "" {
			return fmt.Errorf("redis address is required for redis backend")
		}
		return nil

	default:
		return fmt.Errorf("unknown store backend type: %s", config.Backend)
	}
}
