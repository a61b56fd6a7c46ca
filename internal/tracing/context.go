package tracing

import (
	"context"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RequestIDKey is the context key for the gateway request ID
	RequestIDKey ContextKey = "request_id"
	// SessionIDKey is the context key for the chat session ID
	SessionIDKey ContextKey = "session_id"
	// OwnerIDKey is the context key for the session owner
	OwnerIDKey ContextKey = "owner_id"
)

const requestIDLength = 16

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	RequestID string
	SessionID string
	OwnerID   string
}

// NewRequestID generates a URL-safe request ID.
func NewRequestID() string {
	id, _ := gonanoid.New(requestIDLength)
	return id
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithSessionID adds a session ID to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// WithOwnerID adds a session owner to the context
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerIDKey, ownerID)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// GetSessionID retrieves the session ID from the context
func GetSessionID(ctx context.Context) string {
	return stringValue(ctx, SessionIDKey)
}

// GetOwnerID retrieves the session owner from the context
func GetOwnerID(ctx context.Context) string {
	return stringValue(ctx, OwnerIDKey)
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		RequestID: GetRequestID(ctx),
		SessionID: GetSessionID(ctx),
		OwnerID:   GetOwnerID(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.RequestID != "" {
		ctx = WithRequestID(ctx, tc.RequestID)
	}
	if tc.SessionID != "" {
		ctx = WithSessionID(ctx, tc.SessionID)
	}
	if tc.OwnerID != "" {
		ctx = WithOwnerID(ctx, tc.OwnerID)
	}
	return ctx
}

// NewRequestContext tags ctx with requestID, generating one when empty.
func NewRequestContext(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		requestID = NewRequestID()
	}
	return WithRequestID(ctx, requestID)
}
