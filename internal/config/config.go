package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78/webhook"
	"gopkg.in/yaml.v3"
)

// Default values applied before the config file and environment are read
const (
	DefaultAddr         = ":8080"
	DefaultPath         = "/stripe-events"
	DefaultMaxBodyBytes = int64(1 << 20)
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
	DefaultMetricsPath  = "/metrics"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tail      TailConfig      `yaml:"tail"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig represents the HTTP listener configuration
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	Path         string `yaml:"path"`           // route receiving Stripe events
	MaxBodyBytes int64  `yaml:"max_body_bytes"` // larger bodies are rejected
	// TrustProxy takes the client IP from forwarding headers. Enable only
	// behind a proxy that overwrites them, or clients can pick their own IP.
	TrustProxy bool `yaml:"trust_proxy"`
}

// WebhookConfig holds the signature verification settings.
// Secret must never be logged.
type WebhookConfig struct {
	Secret    string        `yaml:"secret"`
	Tolerance time.Duration `yaml:"tolerance"` // 0s disables the replay window
}

// LogConfig represents logger settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `yaml:"format"` // "json" | "console"
}

// MetricsConfig represents the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TailConfig enables the WebSocket feed of verification outcomes.
// The feed has no authentication: anyone reaching the port sees event ids,
// types and outcomes (never payloads or signatures). Keep it off on
// publicly reachable listeners.
type TailConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RateLimitConfig limits requests per client IP on the webhook route
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"` // 0 disables
}

// Default returns a Config populated with defaults. The secret is left empty.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         DefaultAddr,
			Path:         DefaultPath,
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
		Webhook: WebhookConfig{
			Tolerance: webhook.DefaultTolerance,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    DefaultMetricsPath,
		},
	}
}

// Load reads configuration from the specified YAML file
// Environment variables override file values:
//   - STRIPE_WEBHOOK_SECRET overrides webhook.secret
//   - STRIPEHOOK_ADDR (or PORT) overrides server.addr
//   - STRIPEHOOK_PATH overrides server.path
//   - STRIPEHOOK_TRUST_PROXY overrides server.trust_proxy
//   - STRIPEHOOK_TOLERANCE overrides webhook.tolerance
//   - STRIPEHOOK_LOG_LEVEL / STRIPEHOOK_LOG_FORMAT override log.*
//   - STRIPEHOOK_METRICS_ENABLED overrides metrics.enabled
//   - STRIPEHOOK_TAIL_ENABLED overrides tail.enabled
//   - STRIPEHOOK_RATE_LIMIT_RPM overrides rate_limit.requests_per_minute
func Load(path string) (*Config, error) {
	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal YAML over the defaults
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return finish(cfg)
}

// LoadFromEnv builds the configuration from defaults and environment variables only
func LoadFromEnv() (*Config, error) {
	return finish(Default())
}

func finish(cfg *Config) (*Config, error) {
	// Apply environment variable overrides
	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if secret := os.Getenv("STRIPE_WEBHOOK_SECRET"); secret != "" {
		c.Webhook.Secret = secret
	}

	if addr := os.Getenv("STRIPEHOOK_ADDR"); addr != "" {
		c.Server.Addr = addr
	} else if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}

	if p := os.Getenv("STRIPEHOOK_PATH"); p != "" {
		c.Server.Path = p
	}

	if v := os.Getenv("STRIPEHOOK_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("STRIPEHOOK_TRUST_PROXY: %w", err)
		}
		c.Server.TrustProxy = b
	}

	if v := os.Getenv("STRIPEHOOK_TOLERANCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STRIPEHOOK_TOLERANCE: %w", err)
		}
		c.Webhook.Tolerance = d
	}

	if v := os.Getenv("STRIPEHOOK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("STRIPEHOOK_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	if v := os.Getenv("STRIPEHOOK_METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("STRIPEHOOK_METRICS_ENABLED: %w", err)
		}
		c.Metrics.Enabled = b
	}

	if v := os.Getenv("STRIPEHOOK_TAIL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("STRIPEHOOK_TAIL_ENABLED: %w", err)
		}
		c.Tail.Enabled = b
	}

	if v := os.Getenv("STRIPEHOOK_RATE_LIMIT_RPM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STRIPEHOOK_RATE_LIMIT_RPM: %w", err)
		}
		c.RateLimit.RequestsPerMinute = n
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// The secret is the only setting without a usable default
	if c.Webhook.Secret == "" {
		return fmt.Errorf("webhook.secret is required (set STRIPE_WEBHOOK_SECRET)")
	}

	if c.Webhook.Tolerance < 0 {
		return fmt.Errorf("webhook.tolerance must not be negative, got %s", c.Webhook.Tolerance)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server.path must start with /, got %q", c.Server.Path)
	}

	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not supported (supported: debug, info, warn, error)", c.Log.Level)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format %q is not supported (supported: json, console)", c.Log.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	if c.Metrics.Enabled && c.Metrics.Path == c.Server.Path {
		return fmt.Errorf("metrics.path must differ from server.path")
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must not be negative, got %d", c.RateLimit.RequestsPerMinute)
	}

	return nil
}
