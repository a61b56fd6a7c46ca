package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/harun/chatguard/internal/tracing"
	"github.com/harun/chatguard/pkg/session"
)

// sessionBody carries the session id of a JSON chat request. Both spellings
// are accepted.
type sessionBody struct {
	SessionID      string `json:"session_id"`
	SessionIDCamel string `json:"sessionId"`
}

// RequireSession guards a downstream chat handler. The session id is read
// from the X-Session-ID header, or from the session_id / sessionId field of
// a JSON body when the header is absent, and one interaction of the given
// type is authorized against it. On success the session snapshot is
// available to the next handler through SessionFromContext.
//
// Missing or unknown sessions are answered with 401; rate and interaction
// cap rejections with 429.
func (s *Server) RequireSession(interactionType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(SessionHeader))
			if id == "" {
				id = sessionIDFromBody(r)
			}
			if id == "" {
				writeError(w, http.StatusUnauthorized, CodeSessionRequired, "valid session required")
				return
			}

			decision := s.manager.Authorize(id, interactionType)
			if !decision.Accepted {
				s.writeRejection(w, r, id, decision, http.StatusUnauthorized)
				return
			}

			ctx := withSession(r.Context(), decision.Session)
			ctx = tracing.WithSessionID(ctx, decision.Session.ID)
			ctx = tracing.WithOwnerID(ctx, decision.Session.OwnerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionIDFromBody peeks at a JSON body for a session id. The body is
// restored so the next handler reads it unchanged.
func sessionIDFromBody(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil || len(data) == 0 {
		return ""
	}

	var body sessionBody
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if id := strings.TrimSpace(body.SessionID); id != "" {
		return id
	}
	return strings.TrimSpace(body.SessionIDCamel)
}

// Manager exposes the manager backing the server.
func (s *Server) Manager() *session.Manager {
	return s.manager
}
