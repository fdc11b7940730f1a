// Package config loads the service configuration from an optional YAML file and
// ADVISORY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/curalink-advisory/internal/domain"
	"github.com/curalink-advisory/pkg/gemini"
)

// EnvPrefix is prepended to every environment override, e.g.
// ADVISORY_GATEWAY_MAX_RETRIES.
const EnvPrefix = "ADVISORY"

// Manager implements domain.ConfigManager on its own viper instance.
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// Option customizes a Manager.
type Option func(*Manager)

// WithConfigFile reads path instead of searching for advisory.yaml.
func WithConfigFile(path string) Option {
	return func(m *Manager) { m.configFile = path }
}

// NewManager loads the configuration once.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("advisory")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/advisory-service/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The credential is also accepted under the names the provider documents.
	if err := v.BindEnv("gemini.api_key", EnvPrefix+"_GEMINI_API_KEY", "GOOGLE_AI_API_KEY", "GEMINI_API_KEY"); err != nil {
		return fmt.Errorf("failed to bind API key variables: %w", err)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.request_timeout", "45s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Model provider defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.base_url", gemini.DefaultBaseURL)
	v.SetDefault("gemini.model", gemini.DefaultModel)
	v.SetDefault("gemini.transport", "rest")
	v.SetDefault("gemini.temperature", 0.4)
	v.SetDefault("gemini.max_output_tokens", 1024)

	// Gateway defaults
	v.SetDefault("gateway.timeout", "20s")
	v.SetDefault("gateway.max_retries", 2)
	v.SetDefault("gateway.backoff_base", "500ms")
	v.SetDefault("gateway.backoff_max", "4s")
	v.SetDefault("gateway.jitter_factor", 0.2)
	v.SetDefault("gateway.rate_limit.capacity", 10)
	v.SetDefault("gateway.rate_limit.refill_per_second", 1.0)
	v.SetDefault("gateway.rate_limit.mode", domain.RateLimitQueue)
	v.SetDefault("gateway.rate_limit.max_wait", "5s")
	v.SetDefault("gateway.breaker.enabled", true)
	v.SetDefault("gateway.breaker.consecutive_failures", 5)
	v.SetDefault("gateway.breaker.open_timeout", "30s")
	v.SetDefault("gateway.breaker.half_open_requests", 1)
	v.SetDefault("gateway.breaker.interval", "0s")

	v.SetDefault("prompt.max_input_chars", 4000)

	// Cache defaults
	v.SetDefault("cache.size", 1000)
	v.SetDefault("cache.ttl", "15m")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.redis_timeout", "500ms")

	// Telemetry defaults
	v.SetDefault("telemetry.driver", "none")
	v.SetDefault("telemetry.dsn", DefaultTelemetryPath())

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// DefaultTelemetryPath is the SQLite file used when no DSN is configured.
func DefaultTelemetryPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.TempDir()
	}
	return filepath.Join(homeDir, ".advisory-service", "telemetry.db")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// ConfigFileUsed reports the file that was read, or "" when none was found.
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	return Validate(m.config)
}

// Validate checks every section of config.
func Validate(config *domain.Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server request timeout must be positive")
	}

	switch config.Gemini.Transport {
	case "rest":
	case "genai":
		if config.Gemini.APIKey == "" {
			return fmt.Errorf("the genai transport requires an API key")
		}
	default:
		return fmt.Errorf("invalid gemini transport: %q", config.Gemini.Transport)
	}
	if config.Gemini.Model == "" {
		return fmt.Errorf("gemini model is required")
	}
	if config.Gemini.BaseURL == "" {
		return fmt.Errorf("gemini base URL is required")
	}

	gw := config.Gateway
	if gw.Timeout <= 0 {
		return fmt.Errorf("gateway timeout must be positive")
	}
	if gw.MaxRetries < 0 || gw.MaxRetries > 10 {
		return fmt.Errorf("gateway max retries must be between 0 and 10, got %d", gw.MaxRetries)
	}
	if gw.BackoffBase < 0 || gw.BackoffMax < gw.BackoffBase {
		return fmt.Errorf("gateway backoff must satisfy 0 <= base <= max")
	}
	if gw.JitterFactor < 0 || gw.JitterFactor > 1 {
		return fmt.Errorf("gateway jitter factor must be in [0,1], got %v", gw.JitterFactor)
	}

	rl := gw.RateLimit
	if rl.Capacity < 0 || rl.RefillPerSecond < 0 {
		return fmt.Errorf("rate limit capacity and refill must not be negative")
	}
	if rl.Mode != domain.RateLimitQueue && rl.Mode != domain.RateLimitReject {
		return fmt.Errorf("invalid rate limit mode: %q", rl.Mode)
	}
	if gw.Breaker.Enabled && gw.Breaker.ConsecutiveFailures == 0 {
		return fmt.Errorf("circuit breaker needs a consecutive failure threshold")
	}

	if config.Prompt.MaxInputChars <= 0 {
		return fmt.Errorf("prompt max input chars must be positive")
	}

	if config.Cache.Size <= 0 || config.Cache.TTL <= 0 {
		return fmt.Errorf("cache size and TTL must be positive")
	}

	switch config.Telemetry.Driver {
	case "none", "sqlite":
	case "postgres":
		if config.Telemetry.DSN == "" {
			return fmt.Errorf("postgres telemetry requires a DSN")
		}
	default:
		return fmt.Errorf("invalid telemetry driver: %q", config.Telemetry.Driver)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}
	if config.Logging.Format != "json" && config.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	return nil
}
