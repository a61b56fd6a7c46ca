package gateway

import (
	"time"

	"github.com/harun/chatguard/pkg/session"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeSessionRequired          = "SESSION_REQUIRED"
	CodeInvalidSession           = "INVALID_SESSION"
	CodeRateLimitExceeded        = "RATE_LIMIT_EXCEEDED"
	CodeInteractionLimitExceeded = "INTERACTION_LIMIT_EXCEEDED"
	CodeInvalidRequest           = "INVALID_REQUEST"
	CodeUnauthorized             = "UNAUTHORIZED"
	CodeTooManySessions          = "TOO_MANY_SESSIONS"
	CodeShuttingDown             = "SHUTTING_DOWN"
)

// SessionHeader carries the session id for RequireSession-protected routes.
const SessionHeader = "X-Session-ID"

// RequestIDHeader echoes the request id on every response.
const RequestIDHeader = "X-Request-ID"

// ServerOptions configures the gateway server.
type ServerOptions struct {
	Host         string
	Port         int
	SharedSecret string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// CreateLimitPerMinute bounds session creation per client IP.
	CreateLimitPerMinute int
	// ShutdownTimeout bounds how long Stop waits for in-flight requests.
	ShutdownTimeout time.Duration
	// TrustProxyHeaders takes the client IP from X-Forwarded-For or
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// CreateSessionResponse is returned by POST /api/sessions.
type CreateSessionResponse struct {
	SessionID string    `json:"session_id"`
	IsNew     bool      `json:"is_new"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthorizeRequest is the body of POST /api/sessions/{id}/authorize.
type AuthorizeRequest struct {
	InteractionType string `json:"interaction_type,omitempty"`
}

// AuthorizeResponse is returned for an accepted interaction.
type AuthorizeResponse struct {
	Accepted              bool      `json:"accepted"`
	SessionID             string    `json:"session_id"`
	InteractionCount      int       `json:"interaction_count"`
	RemainingInteractions int       `json:"remaining_interactions"`
	ExpiresAt             time.Time `json:"expires_at"`
}

// ExtendRequest is the body of POST /api/sessions/{id}/extend. Duration is a
// Go duration string such as "30m".
type ExtendRequest struct {
	Duration string `json:"duration"`
}

// ExtendResponse is returned by the extend route.
type ExtendResponse struct {
	OK        bool      `json:"ok"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status         string  `json:"status"`
	Uptime         float64 `json:"uptime"`
	ActiveSessions int     `json:"active_sessions"`
	Timestamp      int64   `json:"timestamp"`
}

// SessionList is returned by GET /api/sessions.
type SessionList struct {
	Sessions []session.Session `json:"sessions"`
	Count    int               `json:"count"`
}
