package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/harun/chatguard/internal/tracing"
	"github.com/harun/chatguard/pkg/session"
)

// decodeBody validates body against the route schema and decodes it into dst.
// It writes the 400 response itself and reports whether decoding succeeded.
func (s *Server) decodeBody(w http.ResponseWriter, route string, body []byte, dst interface{}) bool {
	if err := s.schemas.validate(route, body); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "failed to parse JSON body")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ []byte) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:         "ok",
		Uptime:         time.Since(s.startTime).Seconds(),
		ActiveSessions: s.manager.GetStats().Active,
		Timestamp:      time.Now().UnixMilli(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request, body []byte) {
	var req CreateSessionRequest
	if !s.decodeBody(w, routeCreateSession, body, &req) {
		return
	}

	ip := s.clientIP(r)
	if req.SessionID != "" {
		if sess, ok := s.manager.ResumeSession(req.UserID, req.SessionID); ok {
			s.respondSession(w, r, sess, false, ip)
			return
		}
	}

	if ok, retryAfter := s.limiter.Allow(ip); !ok {
		s.logger.Warn().
			Str("ip", ip).
			Int("retry_after", retryAfter).
			Msg("Session creation rate limit exceeded")
		writeRetryError(w, CodeTooManySessions, "too many sessions created from this client", retryAfter)
		return
	}

	var (
		sess  session.Session
		isNew = true
	)
	if req.SessionID != "" {
		sess, isNew = s.manager.CreateOrGetSession(req.UserID, req.SessionID)
	} else {
		sess = s.manager.CreateSession(req.UserID)
	}
	s.respondSession(w, r, sess, isNew, ip)
}

func (s *Server) respondSession(w http.ResponseWriter, r *http.Request, sess session.Session, isNew bool, ip string) {
	action, status := "session_created", http.StatusCreated
	if !isNew {
		action, status = "session_resumed", http.StatusOK
	}
	ctx := tracing.WithOwnerID(tracing.WithSessionID(r.Context(), sess.ID), sess.OwnerID)
	s.audit.SessionEvent(ctx, action, sess.ID, "success", map[string]interface{}{
		"owner_id": sess.OwnerID,
		"ip":       ip,
	})

	writeJSON(w, status, CreateSessionResponse{
		SessionID: sess.ID,
		IsNew:     isNew,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request, _ []byte) {
	sessions := s.manager.ListSessions()
	writeJSON(w, http.StatusOK, SessionList{
		Sessions: sessions,
		Count:    len(sessions),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ []byte) {
	writeJSON(w, http.StatusOK, s.manager.GetStats())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, _ []byte) {
	sess, ok := s.manager.GetSession(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, CodeInvalidSession, "session not found or expired")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request, _ []byte) {
	id := r.PathValue("id")
	if !s.manager.EndSession(id) {
		writeError(w, http.StatusNotFound, CodeInvalidSession, "session not found")
		return
	}

	s.audit.SessionEvent(r.Context(), "session_ended", id, "success", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request, body []byte) {
	var req AuthorizeRequest
	if !s.decodeBody(w, routeAuthorize, body, &req) {
		return
	}

	id := r.PathValue("id")
	decision := s.manager.Authorize(id, req.InteractionType)
	if !decision.Accepted {
		s.writeRejection(w, r, id, decision, http.StatusNotFound)
		return
	}

	remaining := s.manager.Limits().MaxInteractions - decision.Session.InteractionCount
	if remaining < 0 {
		remaining = 0
	}
	writeJSON(w, http.StatusOK, AuthorizeResponse{
		Accepted:              true,
		SessionID:             decision.Session.ID,
		InteractionCount:      decision.Session.InteractionCount,
		RemainingInteractions: remaining,
		ExpiresAt:             decision.Session.ExpiresAt,
	})
}

// writeRejection maps a rejected decision to its HTTP error. notFoundStatus
// differs between the REST routes (404) and RequireSession (401).
func (s *Server) writeRejection(w http.ResponseWriter, r *http.Request, id string, decision session.Decision, notFoundStatus int) {
	switch decision.Reason {
	case session.ReasonRateLimited:
		s.audit.SecurityEvent(r.Context(), "interaction_rejected", id, "rejected", map[string]interface{}{
			"reason":      string(decision.Reason),
			"retry_after": decision.RetryAfter,
		})
		writeRetryError(w, CodeRateLimitExceeded, "rate limit exceeded, please slow down", decision.RetryAfter)
	case session.ReasonInteractionCap:
		s.audit.SecurityEvent(r.Context(), "interaction_rejected", id, "rejected", map[string]interface{}{
			"reason": string(decision.Reason),
		})
		writeRetryError(w, CodeInteractionLimitExceeded, "session interaction limit reached, please start a new session", 0)
	default:
		writeError(w, notFoundStatus, CodeInvalidSession, "session not found or expired")
	}
}

func (s *Server) handleRateLimit(w http.ResponseWriter, r *http.Request, _ []byte) {
	status := s.manager.ApplyRateLimiting(r.PathValue("id"))
	if status.Reason == session.ReasonNotFound {
		writeError(w, http.StatusNotFound, CodeInvalidSession, "session not found or expired")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request, body []byte) {
	var req ExtendRequest
	if !s.decodeBody(w, routeExtend, body, &req) {
		return
	}

	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "duration must be a Go duration such as \"30m\"")
		return
	}

	id := r.PathValue("id")
	ok, err := s.manager.ExtendSession(id, d)
	if err != nil {
		if errors.Is(err, session.ErrInvalidOperation) {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, CodeInvalidRequest, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, CodeInvalidSession, "session not found or expired")
		return
	}

	resp := ExtendResponse{OK: true}
	if sess, found := s.manager.GetSession(id); found {
		resp.ExpiresAt = sess.ExpiresAt
	}

	s.audit.SessionEvent(r.Context(), "session_extended", id, "success", map[string]interface{}{
		"extension": d.String(),
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request, _ []byte) {
	id := r.PathValue("id")
	if !s.manager.BlockSession(id) {
		writeError(w, http.StatusNotFound, CodeInvalidSession, "session not found or expired")
		return
	}

	s.audit.SecurityEvent(r.Context(), "session_blocked", id, "success", map[string]interface{}{
		"ip": s.clientIP(r),
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
