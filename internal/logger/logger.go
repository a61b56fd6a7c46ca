package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger owns the process log sinks and the zerolog logger built on them.
type Logger struct {
	logger   zerolog.Logger
	file     io.Closer
	redactor *Redactor
}

// Config holds logger configuration
type Config struct {
	Level     string    // debug, info, warn, error
	File      string    // log file path
	Console   bool      // enable console output
	Pretty    bool      // pretty format for console
	Redaction bool      // enable sensitive data redaction
	MaxSize   int       // max size in MB before rotation, 0 disables
	MaxAge    int       // max age in days of rotated files
	Compress  bool      // compress rotated logs
	Output    io.Writer // console sink override, stdout when nil
}

// New builds the logger and installs it as the global zerolog logger.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer

	if cfg.Console {
		var out io.Writer = os.Stdout
		if cfg.Output != nil {
			out = cfg.Output
		}
		if cfg.Pretty {
			out = zerolog.ConsoleWriter{
				Out:        out,
				TimeFormat: time.RFC3339,
			}
		}
		writers = append(writers, out)
	}

	var file *RotatingWriter
	if cfg.File != "" {
		file, err = NewRotatingWriter(cfg.File, cfg.MaxSize, cfg.MaxAge, cfg.Compress)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	var redactor *Redactor
	if cfg.Redaction {
		redactor = NewRedactor()
		writer = redactor.Wrap(writer)
	}

	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	log.Logger = logger

	l := &Logger{
		logger:   logger,
		redactor: redactor,
	}
	if file != nil {
		l.file = file
	}
	return l, nil
}

// Close closes the logger and any open files
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Redactor returns the active redactor, or nil when redaction is off.
func (l *Logger) Redactor() *Redactor {
	return l.redactor
}

// Info logs an info message
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Error logs an error message
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// With creates a child logger with additional context
func (l *Logger) With() zerolog.Context {
	return l.logger.With()
}

// Component returns a child logger tagged with a component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.logger.With().Str("component", name).Logger()
}

// GetZerolog returns the underlying zerolog.Logger
func (l *Logger) GetZerolog() zerolog.Logger {
	return l.logger
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Redaction: true,
		MaxSize:   100,
		MaxAge:    7,
		Compress:  true,
	}
}
