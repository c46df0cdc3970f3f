// Package config loads and validates the gateway configuration.
//
// Configuration is a process-wide snapshot: it is read once at startup from a
// YAML file, secrets and the kill switch may be overridden from the
// environment, and nothing mutates it afterwards. Changing any value means
// restarting the process with a new file, which keeps toggles like
// service_enabled an explicit, auditable operation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gsbdarc/survey-chat-gateway/pkg/observability/logging"
)

// Environment variables that override file values. The names match the
// deployment surface of the original Cloud Run service so existing
// deployment scripts keep working.
const (
	EnvServiceEnabled = "SERVICE_ENABLED"
	EnvUpstreamAPIKey = "UPSTREAM_API_KEY"
	EnvEndpointKey    = "ENDPOINT_KEY"
)

// GatewayConfig is the root configuration for the gateway process.
type GatewayConfig struct {
	// ServiceEnabled is the kill switch. When false every request is
	// rejected before any store or upstream access.
	ServiceEnabled bool `yaml:"service_enabled"`

	// Origin configures the origin allow-list and endpoint key checks.
	Origin OriginConfig `yaml:"origin"`

	// Admission configures the per-caller rate and volume limits.
	Admission AdmissionConfig `yaml:"admission"`

	// Store configures the caller counter store backend.
	Store StoreConfig `yaml:"store"`

	// Upstream configures the completion API the gateway fronts.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Audit configures decision and payload logging.
	Audit AuditConfig `yaml:"audit"`

	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server"`
}

// OriginConfig controls the two independent request validation checks.
type OriginConfig struct {
	// CheckEnabled requires the declared request origin to match one of
	// AllowedOrigins.
	CheckEnabled bool `yaml:"check_enabled"`

	// AllowedOrigins is the scheme+host allow-list. Entries are trimmed
	// of whitespace and trailing slashes at load.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// EndpointKeyEnabled requires callers to present the shared secret
	// in the X-Survey-Token header.
	EndpointKeyEnabled bool `yaml:"endpoint_key_enabled"`

	// EndpointKey is the shared secret. Usually supplied via the
	// ENDPOINT_KEY environment variable rather than the file.
	EndpointKey string `yaml:"endpoint_key"`
}

// AdmissionConfig holds the per-caller limits. For each limit, zero or a
// negative value disables that check.
type AdmissionConfig struct {
	// RateLimitSeconds is the minimum spacing between accepted calls
	// from one caller. Elapsed time equal to the limit is accepted.
	RateLimitSeconds float64 `yaml:"ip_rate_limit_seconds"`

	// MaxRateLimitErrors suspends a caller once its accumulated too-fast
	// rejections reach this count.
	MaxRateLimitErrors int64 `yaml:"ip_max_rate_limit_errors"`

	// MaxCalls is the lifetime cap on accepted calls per caller.
	MaxCalls int64 `yaml:"ip_max_calls"`

	// MaxUpdateAttempts bounds optimistic retries when concurrent
	// requests from one caller conflict on the counter record.
	MaxUpdateAttempts int `yaml:"max_update_attempts"`
}

// StoreConfig selects and configures the counter store backend.
type StoreConfig struct {
	// Backend is one of "memory", "sqlite", or "redis".
	Backend string `yaml:"backend"`

	// SQLite backend configuration.
	SQLite SQLiteStoreConfig `yaml:"sqlite"`

	// Redis backend configuration.
	Redis RedisStoreConfig `yaml:"redis"`
}

// SQLiteStoreConfig configures the embedded SQLite backend.
type SQLiteStoreConfig struct {
	// Path is the database file path.
	Path string `yaml:"path"`
}

// RedisStoreConfig configures the Redis backend.
type RedisStoreConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379").
	Address string `yaml:"address"`

	// Password is the Redis password.
	Password string `yaml:"password"`

	// Database is the Redis database number.
	Database int `yaml:"database"`

	// KeyPrefix is the prefix for all counter keys (default: "caller:").
	KeyPrefix string `yaml:"key_prefix"`

	// TTLSeconds optionally expires idle counter records. Zero keeps
	// records forever, which is the documented default.
	TTLSeconds int `yaml:"ttl_seconds"`
}

// UpstreamConfig configures the completion API calls.
type UpstreamConfig struct {
	// Endpoint is the base URL of the upstream completion API.
	Endpoint string `yaml:"endpoint"`

	// APIKey authenticates the gateway to the upstream. Usually supplied
	// via the UPSTREAM_API_KEY environment variable.
	APIKey string `yaml:"api_key"`

	// DefaultModel is used when a request does not name a model.
	DefaultModel string `yaml:"default_model"`

	// DefaultTemperature is used when a request omits temperature.
	DefaultTemperature float64 `yaml:"default_temperature"`

	// DefaultMaxTokens is used when a request omits max_tokens.
	DefaultMaxTokens int64 `yaml:"default_max_tokens"`

	// TimeoutSeconds is the hard bound on one upstream call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// AuditConfig controls decision and payload logging. Disabling audit changes
// log volume only, never request outcomes.
type AuditConfig struct {
	// Enabled turns on structured decision events.
	Enabled bool `yaml:"enabled"`

	// LogPayloads additionally logs prompt and response summaries.
	// It has no effect unless Enabled is also true.
	LogPayloads bool `yaml:"log_payloads"`
}

// ServerConfig configures the public HTTP listener.
type ServerConfig struct {
	// ListenAddress is the address for the chat endpoint (default ":8080").
	ListenAddress string `yaml:"listen_address"`

	// MetricsPort serves Prometheus metrics on a separate listener.
	MetricsPort int `yaml:"metrics_port"`

	// MaxBodyBytes caps the inbound request body size.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// MaxHistoryMessages caps the conversation history length a caller
	// may submit.
	MaxHistoryMessages int `yaml:"max_history_messages"`

	// ReadTimeoutSeconds bounds reading one request.
	ReadTimeoutSeconds int `yaml:"read_timeout_seconds"`

	// WriteTimeoutSeconds bounds writing one response. Must exceed the
	// upstream timeout or slow completions are cut off mid-response.
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`

	// IdleTimeoutSeconds bounds idle keep-alive connections.
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"`
}

// Default returns the configuration used when the file omits a value. The
// limits match the original deployment defaults: 1s spacing, 1000 lifetime
// calls, suspension after 50 too-fast rejections.
func Default() *GatewayConfig {
	return &GatewayConfig{
		ServiceEnabled: true,
		Origin: OriginConfig{
			CheckEnabled:       true,
			EndpointKeyEnabled: false,
		},
		Admission: AdmissionConfig{
			RateLimitSeconds:   1,
			MaxRateLimitErrors: 50,
			MaxCalls:           1000,
			MaxUpdateAttempts:  5,
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Upstream: UpstreamConfig{
			DefaultModel:       "gpt-4-turbo",
			DefaultTemperature: 0.7,
			DefaultMaxTokens:   1000,
			TimeoutSeconds:     60,
		},
		Audit: AuditConfig{
			Enabled:     false,
			LogPayloads: false,
		},
		Server: ServerConfig{
			ListenAddress:       ":8080",
			MetricsPort:         9190,
			MaxBodyBytes:        64 * 1024,
			MaxHistoryMessages:  40,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 90,
			IdleTimeoutSeconds:  60,
		},
	}
}

// applyEnvOverrides layers environment values over the file. Secrets live in
// the environment so config files can be committed without them.
func applyEnvOverrides(cfg *GatewayConfig) {
	if raw := os.Getenv(EnvServiceEnabled); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			logging.Warnf("Ignoring invalid %s=%q: %v", EnvServiceEnabled, raw, err)
		} else {
			cfg.ServiceEnabled = enabled
		}
	}
	if key := os.Getenv(EnvUpstreamAPIKey); key != "" {
		cfg.Upstream.APIKey = key
	}
	if key := os.Getenv(EnvEndpointKey); key != "" {
		cfg.Origin.EndpointKey = key
	}
}

// NormalizeOrigin canonicalizes an origin value for allow-list comparison:
// surrounding whitespace and trailing slashes are removed. Matching stays
// case-sensitive.
func NormalizeOrigin(origin string) string {
	return strings.TrimRight(strings.TrimSpace(origin), "/")
}

func normalize(cfg *GatewayConfig) {
	origins := make([]string, 0, len(cfg.Origin.AllowedOrigins))
	for _, o := range cfg.Origin.AllowedOrigins {
		if n := NormalizeOrigin(o); n != "" {
			origins = append(origins, n)
		}
	}
	cfg.Origin.AllowedOrigins = origins
	cfg.Upstream.Endpoint = strings.TrimSpace(cfg.Upstream.Endpoint)
	if cfg.Admission.MaxUpdateAttempts <= 0 {
		cfg.Admission.MaxUpdateAttempts = 5
	}
}

func validate(cfg *GatewayConfig) error {
	if cfg.Origin.CheckEnabled && len(cfg.Origin.AllowedOrigins) == 0 {
		return fmt.Errorf("origin.check_enabled requires at least one allowed origin")
	}
	if cfg.Origin.EndpointKeyEnabled && cfg.Origin.EndpointKey == "" {
		return fmt.Errorf("origin.endpoint_key_enabled requires an endpoint key (set %s)", EnvEndpointKey)
	}
	if cfg.Upstream.Endpoint == "" {
		return fmt.Errorf("upstream.endpoint is required")
	}
	if cfg.Upstream.TimeoutSeconds <= 0 {
		return fmt.Errorf("upstream.timeout_seconds must be positive, got %d", cfg.Upstream.TimeoutSeconds)
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.Upstream.APIKey == "" {
		// The process still boots so the kill switch and health endpoint
		// stay reachable; chat requests fail until the key is supplied.
		logging.Warnf("Upstream API key is not configured (set %s); chat requests will fail", EnvUpstreamAPIKey)
	}
	return nil
}
