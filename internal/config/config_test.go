package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/harun/chatguard/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, session.DefaultTTL, cfg.Session.TTL)
	assert.Equal(t, session.DefaultMaxInteractions, cfg.Session.MaxInteractions)
	assert.Equal(t, session.DefaultRateLimitPerMinute, cfg.Session.RateLimitPerMinute)
	assert.Equal(t, session.DefaultCleanupInterval, cfg.Session.CleanupInterval)
	assert.True(t, cfg.Gateway.Enabled)
	assert.Equal(t, "127.0.0.1:8080", cfg.Gateway.Addr())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.NoError(t, cfg.Validate())
}

func TestSessionConfigLimits(t *testing.T) {
	cfg := SessionConfig{TTL: time.Hour, MaxInteractions: 3, RateLimitPerMinute: 2}

	assert.Equal(t, session.Limits{
		TTL:                time.Hour,
		MaxInteractions:    3,
		RateLimitPerMinute: 2,
	}, cfg.Limits())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "zero ttl",
			mutate:  func(c *Config) { c.Session.TTL = 0 },
			wantErr: "session ttl",
		},
		{
			name:    "negative cap",
			mutate:  func(c *Config) { c.Session.MaxInteractions = -1 },
			wantErr: "max_interactions",
		},
		{
			name:    "zero rate",
			mutate:  func(c *Config) { c.Session.RateLimitPerMinute = 0 },
			wantErr: "rate_limit_per_minute",
		},
		{
			name:    "sub-second sweep",
			mutate:  func(c *Config) { c.Session.CleanupInterval = 500 * time.Millisecond },
			wantErr: "cleanup_interval",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Gateway.Port = 70000 },
			wantErr: "gateway port",
		},
		{
			name: "bad port ignored when gateway disabled",
			mutate: func(c *Config) {
				c.Gateway.Enabled = false
				c.Gateway.Port = 0
			},
		},
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.Gateway.Host = "" },
			wantErr: "gateway host",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	str := cfg.String()

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(str), &decoded))
	assert.Contains(t, decoded, "session")
	assert.Contains(t, decoded, "gateway")
	assert.Contains(t, decoded, "logging")
}
