package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading from stdin.
func NewWizard() *Wizard {
	return NewWizardIO(os.Stdin, os.Stdout)
}

// NewWizardIO creates a wizard over arbitrary streams.
func NewWizardIO(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run walks through the session limits, gateway and logging settings.
// Empty answers keep the defaults.
func (w *Wizard) Run() (*Config, error) {
	fmt.Fprintln(w.out, "=== chatguard Configuration Wizard ===")
	fmt.Fprintln(w.out)

	cfg := DefaultConfig()
	validator := NewValidator()

	fmt.Fprintln(w.out, "Session limits:")

	for {
		raw, err := w.prompt(fmt.Sprintf("Session lifetime [%s]: ", cfg.Session.TTL))
		if err != nil {
			return nil, err
		}
		if raw == "" {
			break
		}
		d, err := validator.ValidateDuration("session lifetime", raw, time.Second)
		if err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Session.TTL = d
		break
	}

	for {
		raw, err := w.prompt(fmt.Sprintf("Max interactions per session [%d]: ", cfg.Session.MaxInteractions))
		if err != nil {
			return nil, err
		}
		if raw == "" {
			break
		}
		n, err := validator.ValidatePositiveInt("max interactions", raw)
		if err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Session.MaxInteractions = n
		break
	}

	for {
		raw, err := w.prompt(fmt.Sprintf("Requests per minute [%d]: ", cfg.Session.RateLimitPerMinute))
		if err != nil {
			return nil, err
		}
		if raw == "" {
			break
		}
		n, err := validator.ValidatePositiveInt("requests per minute", raw)
		if err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Session.RateLimitPerMinute = n
		break
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Gateway:")

	for {
		raw, err := w.prompt(fmt.Sprintf("Port [%d]: ", cfg.Gateway.Port))
		if err != nil {
			return nil, err
		}
		if raw == "" {
			break
		}
		port, err := strconv.Atoi(raw)
		if err == nil {
			err = validator.ValidatePort(port)
		}
		if err != nil {
			fmt.Fprintf(w.out, "Error: invalid port %q\n", raw)
			continue
		}
		cfg.Gateway.Port = port
		break
	}

	secret, err := w.prompt("Admin shared secret (press Enter to skip): ")
	if err != nil {
		return nil, err
	}
	cfg.Gateway.SharedSecret = secret

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Logging:")
	level, err := w.prompt("Log level (debug/info/warn/error) [info]: ")
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

func (w *Wizard) prompt(label string) (string, error) {
	fmt.Fprint(w.out, label)
	return w.readLine()
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
