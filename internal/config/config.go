package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/harun/chatguard/pkg/session"
)

// Config represents the main chatguard configuration
type Config struct {
	// Session limits
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Gateway configuration
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// SessionConfig holds the per-session ceilings and sweep period.
// Durations are Go duration strings in the config file ("8h", "5m").
type SessionConfig struct {
	TTL                time.Duration `json:"ttl" mapstructure:"ttl"`
	MaxInteractions    int           `json:"max_interactions" mapstructure:"max_interactions"`
	RateLimitPerMinute int           `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	CleanupInterval    time.Duration `json:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// Limits converts the section into manager limits.
func (s SessionConfig) Limits() session.Limits {
	return session.Limits{
		TTL:                s.TTL,
		MaxInteractions:    s.MaxInteractions,
		RateLimitPerMinute: s.RateLimitPerMinute,
	}
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Enabled           bool          `json:"enabled" mapstructure:"enabled"`
	Port              int           `json:"port" mapstructure:"port"`
	Host              string        `json:"host" mapstructure:"host"`
	SharedSecret      string        `json:"shared_secret" mapstructure:"shared_secret"` // guards admin routes when set
	ReadTimeout       time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	TrustProxyHeaders bool          `json:"trust_proxy_headers" mapstructure:"trust_proxy_headers"` // read client IP from X-Forwarded-For
}

// Addr returns host:port.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			TTL:                session.DefaultTTL,
			MaxInteractions:    session.DefaultMaxInteractions,
			RateLimitPerMinute: session.DefaultRateLimitPerMinute,
			CleanupInterval:    session.DefaultCleanupInterval,
		},
		Gateway: GatewayConfig{
			Enabled:      true,
			Port:         8080,
			Host:         "127.0.0.1",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive (got %s)", c.Session.TTL)
	}
	if c.Session.MaxInteractions <= 0 {
		return fmt.Errorf("session max_interactions must be positive (got %d)", c.Session.MaxInteractions)
	}
	if c.Session.RateLimitPerMinute <= 0 {
		return fmt.Errorf("session rate_limit_per_minute must be positive (got %d)", c.Session.RateLimitPerMinute)
	}
	if c.Session.CleanupInterval < time.Second {
		return fmt.Errorf("session cleanup_interval must be at least 1s (got %s)", c.Session.CleanupInterval)
	}

	if c.Gateway.Enabled {
		if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
			return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
		}
		if c.Gateway.Host == "" {
			return fmt.Errorf("gateway host is required when the gateway is enabled")
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}
