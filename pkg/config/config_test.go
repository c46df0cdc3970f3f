package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
upstream:
  endpoint: "https://api.openai.example/v1"
  api_key: "sk-test"
origin:
  check_enabled: true
  allowed_origins:
    - "https://a.example"
`

func TestParse_DefaultsApplied(t *testing.T) {
	cfg, err := Parse(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.True(t, cfg.ServiceEnabled, "service must default to enabled")
	assert.Equal(t, float64(1), cfg.Admission.RateLimitSeconds)
	assert.Equal(t, int64(50), cfg.Admission.MaxRateLimitErrors)
	assert.Equal(t, int64(1000), cfg.Admission.MaxCalls)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "gpt-4-turbo", cfg.Upstream.DefaultModel)
	assert.Equal(t, 0.7, cfg.Upstream.DefaultTemperature)
	assert.Equal(t, int64(1000), cfg.Upstream.DefaultMaxTokens)
	assert.Equal(t, 60, cfg.Upstream.TimeoutSeconds)
	assert.Equal(t, ":8080", cfg.Server.ListenAddress)
}

func TestParse_FileValuesOverrideDefaults(t *testing.T) {
	cfg, err := Parse(writeConfig(t, minimalConfig+`
service_enabled: false
admission:
  ip_rate_limit_seconds: 2.5
  ip_max_calls: 10
`))
	require.NoError(t, err)

	assert.False(t, cfg.ServiceEnabled)
	assert.Equal(t, 2.5, cfg.Admission.RateLimitSeconds)
	assert.Equal(t, int64(10), cfg.Admission.MaxCalls)
}

func TestParse_AllowedOriginsNormalized(t *testing.T) {
	cfg, err := Parse(writeConfig(t, `
upstream:
  endpoint: "https://api.openai.example/v1"
origin:
  check_enabled: true
  allowed_origins:
    - " https://a.example/ "
    - "https://b.example"
    - "   "
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origin.AllowedOrigins)
}

func TestParse_EnvOverridesWinOverFile(t *testing.T) {
	t.Setenv(EnvServiceEnabled, "false")
	t.Setenv(EnvUpstreamAPIKey, "sk-from-env")
	t.Setenv(EnvEndpointKey, "ek-from-env")

	cfg, err := Parse(writeConfig(t, `
upstream:
  endpoint: "https://api.openai.example/v1"
  api_key: "sk-from-file"
origin:
  check_enabled: true
  allowed_origins: ["https://a.example"]
  endpoint_key_enabled: true
  endpoint_key: "ek-from-file"
`))
	require.NoError(t, err)

	assert.False(t, cfg.ServiceEnabled)
	assert.Equal(t, "sk-from-env", cfg.Upstream.APIKey)
	assert.Equal(t, "ek-from-env", cfg.Origin.EndpointKey)
}

func TestParse_InvalidServiceEnabledEnvIgnored(t *testing.T) {
	t.Setenv(EnvServiceEnabled, "maybe")

	cfg, err := Parse(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.True(t, cfg.ServiceEnabled, "an unparsable override must not flip the kill switch")
}

func TestParse_OriginCheckRequiresAllowlist(t *testing.T) {
	_, err := Parse(writeConfig(t, `
upstream:
  endpoint: "https://api.openai.example/v1"
origin:
  check_enabled: true
`))
	assert.Error(t, err)
}

func TestParse_EndpointKeyCheckRequiresKey(t *testing.T) {
	_, err := Parse(writeConfig(t, `
upstream:
  endpoint: "https://api.openai.example/v1"
origin:
  check_enabled: false
  endpoint_key_enabled: true
`))
	assert.Error(t, err)
}

func TestParse_UpstreamEndpointRequired(t *testing.T) {
	_, err := Parse(writeConfig(t, `
origin:
  check_enabled: false
`))
	assert.Error(t, err)
}

func TestParse_MissingFileFails(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestParse_MissingAPIKeyStillBoots(t *testing.T) {
	// The kill switch and health endpoint must stay reachable without the
	// upstream key; only chat requests fail.
	cfg, err := Parse(writeConfig(t, `
upstream:
  endpoint: "https://api.openai.example/v1"
origin:
  check_enabled: false
`))
	require.NoError(t, err)
	assert.Empty(t, cfg.Upstream.APIKey)
}

func TestNormalizeOrigin(t *testing.T) {
	assert.Equal(t, "https://a.example", NormalizeOrigin(" https://a.example/ "))
	assert.Equal(t, "https://a.example", NormalizeOrigin("https://a.example//"))
	assert.Equal(t, "", NormalizeOrigin("  "))
}
