package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/harun/chatguard/internal/metrics"
	"github.com/harun/chatguard/internal/observability"
	"github.com/harun/chatguard/internal/tracing"
	"github.com/harun/chatguard/pkg/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const maxBodyBytes = 64 << 10

// Route names, used as metric labels and span names.
const (
	routeHealth        = "health"
	routeMetrics       = "metrics"
	routeCreateSession = "create_session"
	routeListSessions  = "list_sessions"
	routeStats         = "stats"
	routeGetSession    = "get_session"
	routeEndSession    = "end_session"
	routeAuthorize     = "authorize"
	routeRateLimit     = "rate_limit"
	routeExtend        = "extend"
	routeBlock         = "block"
)

// apiHandler receives the request body already read and size-limited.
type apiHandler func(w http.ResponseWriter, r *http.Request, body []byte)

// Server is the HTTP surface over a session.Manager.
type Server struct {
	options ServerOptions
	manager *session.Manager
	auth    *AuthHandler
	limiter *ClientRateLimiter
	schemas bodySchemas
	metrics *metrics.Metrics
	audit   *observability.AuditLogger
	logger  zerolog.Logger

	handler   http.Handler
	server    *http.Server
	startTime time.Time

	addrMu sync.RWMutex
	addr   net.Addr

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a gateway server. metrics and audit may be nil.
func NewServer(options ServerOptions, manager *session.Manager, m *metrics.Metrics, audit *observability.AuditLogger, logger zerolog.Logger) (*Server, error) {
	if manager == nil {
		return nil, fmt.Errorf("session manager is required")
	}

	// Set defaults
	if options.Host == "" {
		options.Host = "127.0.0.1"
	}
	if options.ReadTimeout == 0 {
		options.ReadTimeout = 10 * time.Second
	}
	if options.WriteTimeout == 0 {
		options.WriteTimeout = 10 * time.Second
	}
	if options.CreateLimitPerMinute == 0 {
		options.CreateLimitPerMinute = 60
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 30 * time.Second
	}

	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}

	s := &Server{
		options:   options,
		manager:   manager,
		auth:      NewAuthHandler(options.SharedSecret),
		limiter:   NewClientRateLimiter(options.CreateLimitPerMinute),
		schemas:   schemas,
		metrics:   m,
		audit:     audit,
		logger:    logger.With().Str("component", "gateway").Logger(),
		startTime: time.Now(),
	}
	s.handler = s.routes()

	return s, nil
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /health", s.wrap(routeHealth, false, s.handleHealth))
	if s.metrics != nil {
		metricsHandler := s.metrics.Handler()
		mux.Handle("GET /metrics", s.wrap(routeMetrics, false, func(w http.ResponseWriter, r *http.Request, _ []byte) {
			metricsHandler.ServeHTTP(w, r)
		}))
	}

	mux.Handle("POST /api/sessions", s.wrap(routeCreateSession, true, s.handleCreateSession))
	mux.Handle("GET /api/sessions", s.wrap(routeListSessions, true, s.handleListSessions))
	mux.Handle("GET /api/sessions/stats", s.wrap(routeStats, true, s.handleStats))
	mux.Handle("GET /api/sessions/{id}", s.wrap(routeGetSession, true, s.handleGetSession))
	mux.Handle("DELETE /api/sessions/{id}", s.wrap(routeEndSession, true, s.handleEndSession))
	mux.Handle("POST /api/sessions/{id}/authorize", s.wrap(routeAuthorize, true, s.handleAuthorize))
	mux.Handle("GET /api/sessions/{id}/rate-limit", s.wrap(routeRateLimit, true, s.handleRateLimit))
	mux.Handle("POST /api/sessions/{id}/extend", s.wrap(routeExtend, true, s.handleExtend))
	mux.Handle("POST /api/sessions/{id}/block", s.wrap(routeBlock, true, s.handleBlock))

	return mux
}

// Start listens on the configured address and serves until Stop is called.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.options.Host, strconv.Itoa(s.options.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.options.ReadTimeout,
		WriteTimeout: s.options.WriteTimeout,
	}

	s.addrMu.Lock()
	s.server = srv
	s.addr = ln.Addr()
	s.addrMu.Unlock()

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Bool("auth", s.auth.Enabled()).
		Msg("Starting gateway server")

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway server failed: %w", err)
	}
	return nil
}

// Addr returns the bound address once serving, or nil.
func (s *Server) Addr() net.Addr {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.addr
}

// Stop rejects new requests, waits for in-flight ones and shuts the
// listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	// Wait for in-flight requests with timeout
	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.options.ShutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	case <-ctx.Done():
	}

	s.limiter.Stop()

	s.addrMu.RLock()
	srv := s.server
	s.addrMu.RUnlock()
	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown gateway server: %w", err)
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

// statusRecorder captures the response code for metrics and logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(p)
}

// wrap applies the shared request pipeline: shutdown gate, request id,
// tracing span, body limit, authentication, metrics and access logging.
func (s *Server) wrap(route string, authenticate bool, h apiHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			writeError(w, http.StatusServiceUnavailable, CodeShuttingDown, "server is shutting down")
			return
		}
		s.inFlightReqs.Add(1)
		s.shutdownMu.RUnlock()
		defer s.inFlightReqs.Done()

		ctx := tracing.NewRequestContext(r.Context(), r.Header.Get(RequestIDHeader))
		requestID := tracing.GetRequestID(ctx)
		w.Header().Set(RequestIDHeader, requestID)

		attrs := []attribute.KeyValue{tracing.AttrRequestID.String(requestID)}
		if id := r.PathValue("id"); id != "" {
			ctx = tracing.WithSessionID(ctx, id)
			attrs = append(attrs, tracing.AttrSessionID.String(id))
		}
		ctx, span := tracing.StartSpan(ctx, "gateway."+route, attrs...)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w}
		r = r.WithContext(ctx)

		defer func() {
			if p := recover(); p != nil {
				s.logger.Error().
					Interface("panic", p).
					Str("route", route).
					Msg("Panic in gateway handler")
				if rec.status == 0 {
					writeError(rec, http.StatusInternalServerError, CodeInvalidRequest, "internal error")
				}
			}
			s.finish(ctx, route, r, rec.status, time.Since(start))
			span.SetAttributes(attribute.Int("http.status_code", rec.status))
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}
		}()

		body, err := io.ReadAll(http.MaxBytesReader(rec, r.Body, maxBodyBytes))
		if err != nil {
			writeError(rec, http.StatusBadRequest, CodeInvalidRequest, "failed to read request body")
			return
		}

		if authenticate && !s.auth.Authenticate(r, body) {
			s.audit.SecurityEvent(ctx, "auth_rejected", r.PathValue("id"), "rejected", map[string]interface{}{
				"route": route,
				"ip":    s.clientIP(r),
			})
			writeError(rec, http.StatusUnauthorized, CodeUnauthorized, "missing or invalid credentials")
			return
		}

		h(rec, r, body)
	})
}

func (s *Server) finish(ctx context.Context, route string, r *http.Request, status int, elapsed time.Duration) {
	if status == 0 {
		status = http.StatusOK
	}
	if s.metrics != nil {
		s.metrics.ObserveRequest(route, status, elapsed)
	}

	logger := tracing.LoggerFromContext(ctx, s.logger)
	event := logger.Debug()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.
		Str("method", r.Method).
		Str("route", route).
		Int("status", status).
		Dur("duration", elapsed).
		Msg("Gateway request completed")
}

// clientIP extracts the client IP from the request. Forwarding headers are
// only read when TrustProxyHeaders is set.
func (s *Server) clientIP(r *http.Request) string {
	if s.options.TrustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
	})
}

func writeRetryError(w http.ResponseWriter, code, message string, retryAfter int) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error:      http.StatusText(http.StatusTooManyRequests),
		Message:    message,
		Code:       code,
		RetryAfter: retryAfter,
	})
}
