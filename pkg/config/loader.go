package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/gsbdarc/survey-chat-gateway/pkg/observability/logging"
)

var (
	config     *GatewayConfig
	configOnce sync.Once
	configErr  error
	configMu   sync.RWMutex
)

// Load loads the configuration from the specified YAML file once and caches
// it globally. Subsequent calls return the cached snapshot.
func Load(configPath string) (*GatewayConfig, error) {
	configOnce.Do(func() {
		cfg, err := Parse(configPath)
		if err != nil {
			configErr = err
			return
		}
		configMu.Lock()
		config = cfg
		configMu.Unlock()
	})
	if configErr != nil {
		return nil, configErr
	}
	configMu.RLock()
	defer configMu.RUnlock()
	return config, nil
}

// Parse parses the YAML config file without touching the global cache.
// Defaults are applied first, then file values, then environment overrides,
// then validation.
func Parse(configPath string) (*GatewayConfig, error) {
	// Resolve symlinks to handle Kubernetes ConfigMap mounts
	resolved, _ := filepath.EvalSymlinks(configPath)
	if resolved == "" {
		resolved = configPath
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)
	normalize(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Infof("Config loaded: service_enabled=%v origin_check=%v endpoint_key=%v store=%s",
		cfg.ServiceEnabled, cfg.Origin.CheckEnabled, cfg.Origin.EndpointKeyEnabled, cfg.Store.Backend)
	return cfg, nil
}

// Get returns the cached configuration, or nil before Load succeeds.
func Get() *GatewayConfig {
	configMu.RLock()
	defer configMu.RUnlock()
	return config
}
