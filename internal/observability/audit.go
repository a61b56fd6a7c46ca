package observability

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Audit event types.
const (
	AuditTypeSession  = "session"
	AuditTypeSecurity = "security"
	AuditTypeConfig   = "config"
)

// AuditEvent represents a structured event for the audit log
type AuditEvent struct {
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor,omitempty"` // session id or owner id
	Action    string                 `json:"action"`          // e.g. "session_blocked", "interaction_rejected"
	Status    string                 `json:"status"`          // "success", "rejected", "failure"
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// AuditLogger records security-relevant session events as JSON lines.
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   *os.File
}

// NewAuditLogger writes audit events to w.
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{
		logger: zerolog.New(w).With().Timestamp().Logger(),
	}
}

// OpenAuditLog appends audit events to the file at path.
func OpenAuditLog(path string) (*AuditLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	a := NewAuditLogger(file)
	a.file = file
	return a, nil
}

// Record emits an audit event and, when ctx carries a recording span, adds it
// as a span event.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if a == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()

		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.actor", event.Actor),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("type", event.Type).
		Time("event_time", event.Timestamp).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("status", event.Status)

	if event.TraceID != "" {
		entry.Str("trace_id", event.TraceID)
	}
	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Msg("")
}

// Close closes the audit logger's file handle
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		return err
	}
	return nil
}

// SessionEvent records a session lifecycle change.
func (a *AuditLogger) SessionEvent(ctx context.Context, action, sessionID, status string, metadata map[string]interface{}) {
	a.Record(ctx, AuditEvent{
		Type:     AuditTypeSession,
		Actor:    sessionID,
		Action:   action,
		Status:   status,
		Metadata: metadata,
	})
}

// SecurityEvent records a rejected or blocked interaction.
func (a *AuditLogger) SecurityEvent(ctx context.Context, action, sessionID, status string, metadata map[string]interface{}) {
	a.Record(ctx, AuditEvent{
		Type:     AuditTypeSecurity,
		Actor:    sessionID,
		Action:   action,
		Status:   status,
		Metadata: metadata,
	})
}

// ConfigEvent records a configuration change such as a limits reload.
func (a *AuditLogger) ConfigEvent(ctx context.Context, action, actor string, metadata map[string]interface{}) {
	a.Record(ctx, AuditEvent{
		Type:     AuditTypeConfig,
		Actor:    actor,
		Action:   action,
		Status:   "success",
		Metadata: metadata,
	})
}
