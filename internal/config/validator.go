package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validator validates individual configuration values, mostly for the
// interactive wizard where input arrives as text.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateDuration parses a Go duration string and requires it to be at
// least min.
func (v *Validator) ValidateDuration(name, raw string, min time.Duration) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if d < min {
		return 0, fmt.Errorf("%s must be at least %s (got %s)", name, min, d)
	}
	return d, nil
}

// ValidatePositiveInt parses a strictly positive integer.
func (v *Validator) ValidatePositiveInt(name, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a number", name, raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive (got %d)", name, n)
	}
	return n, nil
}

// ValidatePort validates a TCP port number.
func (v *Validator) ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535 (got %d)", port)
	}
	return nil
}

// ValidateLogLevel validates a log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig collects every problem in cfg instead of stopping at the
// first one.
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if cfg.Session.TTL <= 0 {
		errs = append(errs, fmt.Errorf("session ttl must be positive"))
	}
	if cfg.Session.MaxInteractions <= 0 {
		errs = append(errs, fmt.Errorf("session max_interactions must be positive"))
	}
	if cfg.Session.RateLimitPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("session rate_limit_per_minute must be positive"))
	}
	if cfg.Session.CleanupInterval < time.Second {
		errs = append(errs, fmt.Errorf("session cleanup_interval must be at least 1s"))
	}
	if cfg.Session.RateLimitPerMinute > 0 && cfg.Session.MaxInteractions > 0 &&
		cfg.Session.RateLimitPerMinute > cfg.Session.MaxInteractions {
		errs = append(errs, fmt.Errorf("rate_limit_per_minute (%d) exceeds max_interactions (%d)",
			cfg.Session.RateLimitPerMinute, cfg.Session.MaxInteractions))
	}

	if cfg.Gateway.Enabled {
		if err := v.ValidatePort(cfg.Gateway.Port); err != nil {
			errs = append(errs, fmt.Errorf("gateway: %w", err))
		}
		if cfg.Gateway.SharedSecret != "" && len(cfg.Gateway.SharedSecret) < 16 {
			errs = append(errs, fmt.Errorf("gateway shared_secret must be at least 16 characters"))
		}
	}

	if cfg.Logging.Level != "" {
		if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}
