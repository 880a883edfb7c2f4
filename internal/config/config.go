// Package config provides gateway configuration from environment
// variables with an optional YAML file overlay and hot-reload support.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gateway configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Providers   ProvidersConfig   `yaml:"providers"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Retry       RetryConfig       `yaml:"retry"`
	Circuit     CircuitConfig     `yaml:"circuit"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProvidersConfig holds upstream provider credentials and selection.
type ProvidersConfig struct {
	Default          string `yaml:"default"`
	OpenAIAPIKey     string `yaml:"openai_api_key"`
	AnthropicAPIKey  string `yaml:"anthropic_api_key"`
	OpenAIBaseURL    string `yaml:"openai_base_url"`
	AnthropicBaseURL string `yaml:"anthropic_base_url"`
}

// RateLimitConfig defines the fixed-window limiter parameters.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// RetryConfig defines the retry driver parameters.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// CircuitConfig defines per-provider circuit breaker parameters.
type CircuitConfig struct {
	CallTimeout              time.Duration `yaml:"call_timeout"`
	ErrorThresholdPercentage int           `yaml:"error_threshold_percentage"`
	ResetTimeout             time.Duration `yaml:"reset_timeout"`
}

// IdempotencyConfig defines response cache parameters.
type IdempotencyConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns a configuration with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Providers: ProvidersConfig{
			Default: "openai",
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 100,
			Window:      60 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		Circuit: CircuitConfig{
			CallTimeout:              30 * time.Second,
			ErrorThresholdPercentage: 50,
			ResetTimeout:             60 * time.Second,
		},
		Idempotency: IdempotencyConfig{
			TTL: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFromEnv builds a configuration from environment variables,
// starting from the defaults. Durations are taken as milliseconds.
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()

	var err error
	if cfg.Server.Port, err = envInt("PORT", cfg.Server.Port); err != nil {
		return nil, err
	}
	if v := os.Getenv("DEFAULT_PROVIDER"); v != "" {
		cfg.Providers.Default = v
	}
	cfg.Providers.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Providers.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Providers.OpenAIBaseURL = v
	}
	if v := os.Getenv("ANTHROPIC_BASE_URL"); v != "" {
		cfg.Providers.AnthropicBaseURL = v
	}

	if cfg.RateLimit.MaxRequests, err = envInt("RATE_LIMIT_MAX", cfg.RateLimit.MaxRequests); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Window, err = envMillis("RATE_LIMIT_WINDOW_MS", cfg.RateLimit.Window); err != nil {
		return nil, err
	}

	if cfg.Retry.MaxAttempts, err = envInt("RETRY_MAX_ATTEMPTS", cfg.Retry.MaxAttempts); err != nil {
		return nil, err
	}
	if cfg.Retry.InitialDelay, err = envMillis("RETRY_INITIAL_DELAY_MS", cfg.Retry.InitialDelay); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxDelay, err = envMillis("RETRY_MAX_DELAY_MS", cfg.Retry.MaxDelay); err != nil {
		return nil, err
	}

	if cfg.Circuit.CallTimeout, err = envMillis("CIRCUIT_TIMEOUT_MS", cfg.Circuit.CallTimeout); err != nil {
		return nil, err
	}
	if cfg.Circuit.ErrorThresholdPercentage, err = envInt("CIRCUIT_ERROR_THRESHOLD", cfg.Circuit.ErrorThresholdPercentage); err != nil {
		return nil, err
	}
	if cfg.Circuit.ResetTimeout, err = envMillis("CIRCUIT_RESET_TIMEOUT_MS", cfg.Circuit.ResetTimeout); err != nil {
		return nil, err
	}

	if cfg.Idempotency.TTL, err = envMillis("IDEMPOTENCY_TTL_MS", cfg.Idempotency.TTL); err != nil {
		return nil, err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads and parses a YAML configuration file on top of
// the defaults. Environment variables in ${VAR_NAME} form are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Providers.Default != "openai" && c.Providers.Default != "anthropic" {
		return fmt.Errorf("invalid default provider: %q", c.Providers.Default)
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate limit max must be positive, got %d", c.RateLimit.MaxRequests)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %v", c.RateLimit.Window)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialDelay <= 0 || c.Retry.MaxDelay < c.Retry.InitialDelay {
		return fmt.Errorf("invalid retry delays: initial=%v max=%v", c.Retry.InitialDelay, c.Retry.MaxDelay)
	}
	if c.Circuit.ErrorThresholdPercentage <= 0 || c.Circuit.ErrorThresholdPercentage > 100 {
		return fmt.Errorf("circuit error threshold must be in (0,100], got %d", c.Circuit.ErrorThresholdPercentage)
	}
	if c.Circuit.CallTimeout <= 0 || c.Circuit.ResetTimeout <= 0 {
		return fmt.Errorf("circuit timeouts must be positive")
	}
	if c.Idempotency.TTL <= 0 {
		return fmt.Errorf("idempotency ttl must be positive, got %v", c.Idempotency.TTL)
	}
	return nil
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

func envMillis(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return time.Duration(n) * time.Millisecond, nil
}
