package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	lc := logger.With()
	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.RequestID != "" {
		lc = lc.Str("request_id", tc.RequestID)
	}
	if tc.SessionID != "" {
		lc = lc.Str("session_id", tc.SessionID)
	}
	if tc.OwnerID != "" {
		lc = lc.Str("owner_id", tc.OwnerID)
	}
	return lc.Logger()
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext copies tracing values from source that target lacks.
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.RequestID != "" && GetRequestID(target) == "" {
		target = WithRequestID(target, tc.RequestID)
	}
	if tc.SessionID != "" && GetSessionID(target) == "" {
		target = WithSessionID(target, tc.SessionID)
	}
	if tc.OwnerID != "" && GetOwnerID(target) == "" {
		target = WithOwnerID(target, tc.OwnerID)
	}

	return target
}

// Detach returns a background context carrying ctx's tracing values, for
// work that must outlive the request.
func Detach(ctx context.Context) context.Context {
	return NewContext(context.Background(), FromContext(ctx))
}
