package logger

import (
	"io"
	"regexp"
	"strings"
	"sync"
)

const redactedMarker = "[REDACTED]"

// Redactor scrubs credentials from log lines before they reach any writer.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
}

// NewRedactor creates a new redactor with default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Authorization headers
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._~+/-]+=*`),
			regexp.MustCompile(`(?i)x-admin-secret["\s:=]+[^\s",]+`),

			// Provider API keys
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`AKIA[0-9A-Z]{16}`),

			// key=value credentials
			regexp.MustCompile(`(?i)password["\s:=]+[^\s",]+`),
			regexp.MustCompile(`(?i)secret["\s:=]+[^\s",]+`),
			regexp.MustCompile(`(?i)token["\s:=]+[a-zA-Z0-9._-]{20,}`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.patterns = append(r.patterns, re)
	r.mu.Unlock()
	return nil
}

// AddLiteral redacts an exact value, such as the configured gateway secret.
// Empty values are ignored.
func (r *Redactor) AddLiteral(value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	re := regexp.MustCompile(regexp.QuoteMeta(value))
	r.mu.Lock()
	r.patterns = append(r.patterns, re)
	r.mu.Unlock()
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, pattern := range r.patterns {
		s = pattern.ReplaceAllString(s, redactedMarker)
	}
	return s
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog does not treat a shorter
// redacted line as a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	redacted := w.redactor.Redact(string(p))
	if _, err := io.WriteString(w.writer, redacted); err != nil {
		return 0, err
	}
	return len(p), nil
}
