package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Prompt    PromptConfig    `mapstructure:"prompt"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RequestTimeout bounds one advisory call made through the HTTP edge.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// GeminiConfig represents the model provider configuration
type GeminiConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	// Transport selects the client implementation: "rest" or "genai".
	Transport       string  `mapstructure:"transport"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
}

// GatewayConfig represents retry, timeout and admission settings for model calls
type GatewayConfig struct {
	Timeout      time.Duration   `mapstructure:"timeout"`
	MaxRetries   int             `mapstructure:"max_retries"`
	BackoffBase  time.Duration   `mapstructure:"backoff_base"`
	BackoffMax   time.Duration   `mapstructure:"backoff_max"`
	JitterFactor float64         `mapstructure:"jitter_factor"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
	Breaker      BreakerConfig   `mapstructure:"breaker"`
}

// Rate limit modes
const (
	RateLimitQueue  = "queue"
	RateLimitReject = "reject"
)

// RateLimitConfig represents the token bucket in front of the upstream
type RateLimitConfig struct {
	Capacity        int           `mapstructure:"capacity"`
	RefillPerSecond float64       `mapstructure:"refill_per_second"`
	Mode            string        `mapstructure:"mode"` // "queue", "reject"
	MaxWait         time.Duration `mapstructure:"max_wait"`
}

// BreakerConfig represents circuit breaker settings
type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
	HalfOpenRequests    uint32        `mapstructure:"half_open_requests"`
	Interval            time.Duration `mapstructure:"interval"`
}

// PromptConfig represents prompt construction limits
type PromptConfig struct {
	MaxInputChars int `mapstructure:"max_input_chars"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	Size     int           `mapstructure:"size"`
	TTL      time.Duration `mapstructure:"ttl"`
	RedisURL string        `mapstructure:"redis_url"`
	// RedisTimeout bounds each Redis round trip.
	RedisTimeout time.Duration `mapstructure:"redis_timeout"`
}

// TelemetryConfig represents advisory event storage
type TelemetryConfig struct {
	Driver string `mapstructure:"driver"` // "none", "sqlite", "postgres"
	DSN    string `mapstructure:"dsn"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
