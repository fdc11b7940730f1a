package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curalink-advisory/internal/domain"
	"github.com/curalink-advisory/pkg/gemini"
)

func clearCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("ADVISORY_GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_AI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
}

func TestNewManager_Defaults(t *testing.T) {
	clearCredentials(t)

	m, err := NewManager()
	require.NoError(t, err)
	cfg := m.GetConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, gemini.DefaultModel, cfg.Gemini.Model)
	assert.Equal(t, gemini.DefaultBaseURL, cfg.Gemini.BaseURL)
	assert.Equal(t, "rest", cfg.Gemini.Transport)
	assert.Equal(t, 20*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 2, cfg.Gateway.MaxRetries)
	assert.Equal(t, domain.RateLimitQueue, cfg.Gateway.RateLimit.Mode)
	assert.Equal(t, uint32(5), cfg.Gateway.Breaker.ConsecutiveFailures)
	assert.Equal(t, 4000, cfg.Prompt.MaxInputChars)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "none", cfg.Telemetry.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Gemini.APIKey)

	assert.NoError(t, m.Validate())
}

func TestNewManager_EnvironmentOverrides(t *testing.T) {
	clearCredentials(t)
	t.Setenv("ADVISORY_SERVER_PORT", "9090")
	t.Setenv("ADVISORY_GATEWAY_MAX_RETRIES", "4")
	t.Setenv("ADVISORY_GATEWAY_TIMEOUT", "3s")
	t.Setenv("ADVISORY_GATEWAY_RATE_LIMIT_MODE", "reject")
	t.Setenv("ADVISORY_CACHE_TTL", "1h")
	t.Setenv("ADVISORY_LOGGING_LEVEL", "debug")

	m, err := NewManager()
	require.NoError(t, err)
	cfg := m.GetConfig()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Gateway.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, domain.RateLimitReject, cfg.Gateway.RateLimit.Mode)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestNewManager_APIKeyAliases(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"prefixed", map[string]string{"ADVISORY_GEMINI_API_KEY": "a"}, "a"},
		{"google alias", map[string]string{"GOOGLE_AI_API_KEY": "b"}, "b"},
		{"gemini alias", map[string]string{"GEMINI_API_KEY": "c"}, "c"},
		{"prefixed wins", map[string]string{"ADVISORY_GEMINI_API_KEY": "a", "GEMINI_API_KEY": "c"}, "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearCredentials(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			m, err := NewManager()
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.GetConfig().Gemini.APIKey)
		})
	}
}

func TestNewManager_ConfigFile(t *testing.T) {
	clearCredentials(t)
	path := filepath.Join(t.TempDir(), "advisory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7000
gemini:
  model: gemini-2.0-flash
gateway:
  max_retries: 1
  breaker:
    enabled: false
telemetry:
  driver: sqlite
  dsn: /tmp/advisory-test.db
`), 0644))

	t.Setenv("ADVISORY_SERVER_PORT", "7100")

	m, err := NewManager(WithConfigFile(path))
	require.NoError(t, err)
	cfg := m.GetConfig()

	assert.Equal(t, path, m.ConfigFileUsed())
	assert.Equal(t, 7100, cfg.Server.Port, "environment overrides the file")
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
	assert.Equal(t, 1, cfg.Gateway.MaxRetries)
	assert.False(t, cfg.Gateway.Breaker.Enabled)
	assert.Equal(t, "sqlite", cfg.Telemetry.Driver)
	assert.Equal(t, "/tmp/advisory-test.db", cfg.Telemetry.DSN)
	assert.Equal(t, 4000, cfg.Prompt.MaxInputChars, "defaults fill unspecified keys")
}

func TestNewManager_MissingExplicitFile(t *testing.T) {
	_, err := NewManager(WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	clearCredentials(t)

	tests := []struct {
		name   string
		mutate func(*domain.Config)
	}{
		{"port", func(c *domain.Config) { c.Server.Port = 70000 }},
		{"request timeout", func(c *domain.Config) { c.Server.RequestTimeout = 0 }},
		{"transport", func(c *domain.Config) { c.Gemini.Transport = "grpc" }},
		{"genai without key", func(c *domain.Config) { c.Gemini.Transport = "genai" }},
		{"model", func(c *domain.Config) { c.Gemini.Model = "" }},
		{"gateway timeout", func(c *domain.Config) { c.Gateway.Timeout = 0 }},
		{"retries", func(c *domain.Config) { c.Gateway.MaxRetries = 11 }},
		{"backoff", func(c *domain.Config) { c.Gateway.BackoffMax = time.Millisecond }},
		{"jitter", func(c *domain.Config) { c.Gateway.JitterFactor = 1.5 }},
		{"rate mode", func(c *domain.Config) { c.Gateway.RateLimit.Mode = "drop" }},
		{"rate capacity", func(c *domain.Config) { c.Gateway.RateLimit.Capacity = -1 }},
		{"breaker threshold", func(c *domain.Config) { c.Gateway.Breaker.ConsecutiveFailures = 0 }},
		{"prompt cap", func(c *domain.Config) { c.Prompt.MaxInputChars = 0 }},
		{"cache ttl", func(c *domain.Config) { c.Cache.TTL = 0 }},
		{"telemetry driver", func(c *domain.Config) { c.Telemetry.Driver = "mongo" }},
		{"postgres dsn", func(c *domain.Config) { c.Telemetry.Driver = "postgres"; c.Telemetry.DSN = "" }},
		{"log level", func(c *domain.Config) { c.Logging.Level = "verbose" }},
		{"log format", func(c *domain.Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager()
			require.NoError(t, err)
			tt.mutate(m.GetConfig())
			assert.Error(t, m.Validate())
		})
	}
}
