package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. CHATGUARD_SESSION_TTL.
	EnvPrefix = "CHATGUARD"

	appDirName     = ".chatguard"
	configFileName = "chatguard.json"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file if it exists, applies environment overrides and
// fills derived paths. A missing file yields the defaults plus overrides.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to resolve config path")
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, appDirName)
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "chatguard.log")
	}
	if cfg.Logging.AuditFile == "" {
		cfg.Logging.AuditFile = filepath.Join(cfg.DataDir, "audit.log")
	}

	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	// Durations are written as strings so the file stays hand-editable.
	v.Set("session.ttl", cfg.Session.TTL.String())
	v.Set("session.max_interactions", cfg.Session.MaxInteractions)
	v.Set("session.rate_limit_per_minute", cfg.Session.RateLimitPerMinute)
	v.Set("session.cleanup_interval", cfg.Session.CleanupInterval.String())
	v.Set("gateway.enabled", cfg.Gateway.Enabled)
	v.Set("gateway.port", cfg.Gateway.Port)
	v.Set("gateway.host", cfg.Gateway.Host)
	v.Set("gateway.shared_secret", cfg.Gateway.SharedSecret)
	v.Set("gateway.read_timeout", cfg.Gateway.ReadTimeout.String())
	v.Set("gateway.write_timeout", cfg.Gateway.WriteTimeout.String())
	v.Set("gateway.trust_proxy_headers", cfg.Gateway.TrustProxyHeaders)
	v.Set("logging", cfg.Logging)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, appDirName, configFileName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}

// setDefaults registers every key so environment overrides apply even when
// the file omits them.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("session.ttl", cfg.Session.TTL)
	v.SetDefault("session.max_interactions", cfg.Session.MaxInteractions)
	v.SetDefault("session.rate_limit_per_minute", cfg.Session.RateLimitPerMinute)
	v.SetDefault("session.cleanup_interval", cfg.Session.CleanupInterval)

	v.SetDefault("gateway.enabled", cfg.Gateway.Enabled)
	v.SetDefault("gateway.port", cfg.Gateway.Port)
	v.SetDefault("gateway.host", cfg.Gateway.Host)
	v.SetDefault("gateway.shared_secret", cfg.Gateway.SharedSecret)
	v.SetDefault("gateway.read_timeout", cfg.Gateway.ReadTimeout)
	v.SetDefault("gateway.write_timeout", cfg.Gateway.WriteTimeout)
	v.SetDefault("gateway.trust_proxy_headers", cfg.Gateway.TrustProxyHeaders)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.audit_file", cfg.Logging.AuditFile)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_age", cfg.Logging.MaxAge)
	v.SetDefault("logging.compress", cfg.Logging.Compress)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)

	v.SetDefault("data_dir", cfg.DataDir)
}
