package session

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTTL                = 8 * time.Hour
	DefaultMaxInteractions    = 50
	DefaultRateLimitPerMinute = 10

	// AnonymousOwner is recorded when a session is created without an owner.
	AnonymousOwner = "anonymous"

	// DefaultInteractionType is used by Authorize when the caller names none.
	DefaultInteractionType = "general"
)

// Eviction causes reported to the Recorder.
const (
	EvictValidate = "validate"
	EvictSweep    = "sweep"
	EvictEnd      = "end"
)

// Limits are the per-session ceilings enforced by the Manager.
type Limits struct {
	TTL                time.Duration
	MaxInteractions    int
	RateLimitPerMinute int
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{
		TTL:                DefaultTTL,
		MaxInteractions:    DefaultMaxInteractions,
		RateLimitPerMinute: DefaultRateLimitPerMinute,
	}
}

func (l Limits) withDefaults() Limits {
	if l.TTL == 0 {
		l.TTL = DefaultTTL
	}
	if l.MaxInteractions == 0 {
		l.MaxInteractions = DefaultMaxInteractions
	}
	if l.RateLimitPerMinute == 0 {
		l.RateLimitPerMinute = DefaultRateLimitPerMinute
	}
	return l
}

// Validate rejects negative limits.
func (l Limits) Validate() error {
	if l.TTL < 0 {
		return fmt.Errorf("%w: session ttl must be positive (got %s)", ErrInvalidOperation, l.TTL)
	}
	if l.MaxInteractions < 0 {
		return fmt.Errorf("%w: max interactions must be positive (got %d)", ErrInvalidOperation, l.MaxInteractions)
	}
	if l.RateLimitPerMinute < 0 {
		return fmt.Errorf("%w: rate limit per minute must be positive (got %d)", ErrInvalidOperation, l.RateLimitPerMinute)
	}
	return nil
}

// Recorder receives manager events, typically to feed metrics.
// Calls are made after the manager lock has been released.
type Recorder interface {
	RecordSessionCreated()
	RecordEviction(cause string, count int)
	RecordInteraction(reason Reason)
	SetActiveSessions(count int)
	RecordSweep(duration time.Duration, removed int)
}

type nopRecorder struct{}

func (nopRecorder) RecordSessionCreated() {}
func (nopRecorder) RecordEviction(string, int) {}
func (nopRecorder) RecordInteraction(Reason) {}
func (nopRecorder) SetActiveSessions(int) {}
func (nopRecorder) RecordSweep(time.Duration, int) {}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Limits   Limits
	Logger   *zerolog.Logger
	Recorder Recorder
	Now      func() time.Time
	// NewID must never return an id it has returned before, including ids
	// of sessions that were since evicted. Defaults to uuid.NewString.
	NewID    func() string
}

// Decision is the outcome of an interaction request.
type Decision struct {
	Accepted bool   `json:"accepted"`
	Reason   Reason `json:"reason,omitempty"`
	// RetryAfter is set only for ReasonRateLimited, in seconds.
	RetryAfter int `json:"retry_after,omitempty"`
	// Session is the state after the decision; zero when the session was not found.
	Session Session `json:"-"`
}

// Err returns the sentinel error for a rejection, or nil when accepted.
func (d Decision) Err() error {
	if d.Accepted {
		return nil
	}
	return d.Reason.Err()
}

// RateLimitStatus is the result of a side-effect-free rate limit probe.
type RateLimitStatus struct {
	Allowed    bool   `json:"allowed"`
	Reason     Reason `json:"reason,omitempty"`
	Remaining  int    `json:"remaining"`
	RetryAfter int    `json:"retry_after,omitempty"`
	Current    int    `json:"current_count"`
	Limit      int    `json:"limit"`
}

// Stats is a point-in-time count of stored sessions by status.
type Stats struct {
	Total       int `json:"total_sessions"`
	Active      int `json:"active_sessions"`
	Expired     int `json:"expired_sessions"`
	RateLimited int `json:"rate_limited_sessions"`
	Blocked     int `json:"blocked_sessions"`
	Throttled   int `json:"throttled_sessions"`
	RateWindows int `json:"rate_tracking_entries"`
}

// Manager is the in-memory authority for session state. Every public method
// holds mu for its whole critical section; sessions and windows always change
// together so their key sets stay identical.
type Manager struct {
	mu       sync.Mutex
	limits   Limits
	sessions map[string]*Session
	windows  map[string][]time.Time

	now      func() time.Time
	newID    func() string
	recorder Recorder
	logger   zerolog.Logger
}

// NewManager creates a manager. Zero limits fall back to the defaults.
func NewManager(opts ManagerOptions) (*Manager, error) {
	limits := opts.Limits.withDefaults()
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	idFn := opts.NewID
	if idFn == nil {
		idFn = uuid.NewString
	}
	var recorder Recorder = nopRecorder{}
	if opts.Recorder != nil {
		recorder = opts.Recorder
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	m := &Manager{
		limits:   limits,
		sessions: make(map[string]*Session),
		windows:  make(map[string][]time.Time),
		now:      nowFn,
		newID:    idFn,
		recorder: recorder,
		logger:   logger.With().Str("component", "session").Logger(),
	}

	m.logger.Info().
		Dur("ttl", limits.TTL).
		Int("max_interactions", limits.MaxInteractions).
		Int("rate_limit_per_minute", limits.RateLimitPerMinute).
		Msg("Session manager initialized")

	return m, nil
}

// Limits returns the limits currently in force.
func (m *Manager) Limits() Limits {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits
}

// UpdateLimits replaces the limits. Existing sessions keep their expiry; the
// new cap and rate apply from their next interaction.
func (m *Manager) UpdateLimits(limits Limits) error {
	limits = limits.withDefaults()
	if err := limits.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.limits = limits
	m.mu.Unlock()

	m.logger.Info().
		Dur("ttl", limits.TTL).
		Int("max_interactions", limits.MaxInteractions).
		Int("rate_limit_per_minute", limits.RateLimitPerMinute).
		Msg("Session limits updated")
	return nil
}

// CreateSession registers a new active session for ownerID.
func (m *Manager) CreateSession(ownerID string) Session {
	ownerID = normalizeOwner(ownerID)

	m.mu.Lock()
	sess := m.createLocked(ownerID)
	active := len(m.sessions)
	m.mu.Unlock()

	m.recorder.RecordSessionCreated()
	m.recorder.SetActiveSessions(active)
	m.logger.Info().
		Str("session_id", sess.ID).
		Str("owner_id", ownerID).
		Msg("Session created")

	return sess
}

// CreateOrGetSession returns the live session named by key when it belongs to
// ownerID, or creates a new one. The boolean reports whether a session was
// created. A key for a dead session never revives it; a fresh id is issued.
func (m *Manager) CreateOrGetSession(ownerID, key string) (Session, bool) {
	key = strings.TrimSpace(key)
	owner := normalizeOwner(ownerID)

	m.mu.Lock()
	var (
		evicted int
		live    *Session
	)
	if key != "" {
		var gone bool
		live, gone = m.lookupLocked(key)
		if gone {
			evicted = 1
		}
		if live != nil && !ownedBy(live, ownerID) {
			live = nil
		}
	}
	var (
		snap    Session
		created bool
	)
	if live != nil {
		snap = live.Clone()
	} else {
		snap = m.createLocked(owner)
		created = true
	}
	active := len(m.sessions)
	m.mu.Unlock()

	if evicted > 0 {
		m.recorder.RecordEviction(EvictValidate, evicted)
	}
	if created {
		m.recorder.RecordSessionCreated()
		m.logger.Info().
			Str("session_id", snap.ID).
			Str("owner_id", owner).
			Str("presented_key", key).
			Msg("Session created")
	}
	m.recorder.SetActiveSessions(active)

	return snap, created
}

// ResumeSession returns the live session named by key when it belongs to
// ownerID. It never creates a session; a dead key is evicted.
func (m *Manager) ResumeSession(ownerID, key string) (Session, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Session{}, false
	}

	m.mu.Lock()
	live, gone := m.lookupLocked(key)
	var snap Session
	ok := live != nil && ownedBy(live, ownerID)
	if ok {
		snap = live.Clone()
	}
	active := len(m.sessions)
	m.mu.Unlock()

	if gone {
		m.recorder.RecordEviction(EvictValidate, 1)
		m.recorder.SetActiveSessions(active)
	}
	return snap, ok
}

// ValidateSession returns a snapshot of the session if it is still valid.
// An invalid session is removed together with its rate window.
func (m *Manager) ValidateSession(id string) (Session, bool) {
	m.mu.Lock()
	sess, gone := m.lookupLocked(id)
	var snap Session
	if sess != nil {
		snap = sess.Clone()
	}
	active := len(m.sessions)
	m.mu.Unlock()

	m.reportLookup(id, sess != nil, gone, active)
	return snap, sess != nil
}

// GetSession is an alias of ValidateSession for read-only callers.
func (m *Manager) GetSession(id string) (Session, bool) {
	return m.ValidateSession(id)
}

// TrackInteraction validates the session, applies the sliding-window rate
// limit and the lifetime interaction cap, and records the interaction when
// both pass. The whole check-and-record is atomic.
func (m *Manager) TrackInteraction(id, interactionType string) Decision {
	m.mu.Lock()
	now := m.now()
	sess, gone := m.lookupLocked(id)
	if sess == nil {
		active := len(m.sessions)
		m.mu.Unlock()

		m.reportLookup(id, false, gone, active)
		m.recorder.RecordInteraction(ReasonNotFound)
		return Decision{Reason: ReasonNotFound}
	}

	var d Decision
	window := pruneWindow(m.windows[id], now)
	m.windows[id] = window
	switch {
	case len(window) >= m.limits.RateLimitPerMinute:
		// Window overflow throttles but leaves the session Active so it
		// accepts work again once the window drains.
		d = Decision{Reason: ReasonRateLimited, RetryAfter: secondsToNextMinute(now)}
	case !sess.IncrementInteraction(m.limits.MaxInteractions, now):
		d = Decision{Reason: ReasonInteractionCap}
	default:
		m.windows[id] = append(window, now)
		sess.Annotate("last_"+interactionType, now)
		d = Decision{Accepted: true}
	}
	d.Session = sess.Clone()
	m.mu.Unlock()

	m.recorder.RecordInteraction(d.Reason)
	switch d.Reason {
	case ReasonRateLimited:
		m.logger.Warn().
			Str("session_id", id).
			Int("retry_after", d.RetryAfter).
			Msg("Rate limit exceeded")
	case ReasonInteractionCap:
		m.logger.Warn().
			Str("session_id", id).
			Int("interactions", d.Session.InteractionCount).
			Msg("Interaction limit exceeded")
	default:
		m.logger.Debug().
			Str("session_id", id).
			Str("interaction_type", interactionType).
			Int("interactions", d.Session.InteractionCount).
			Msg("Interaction tracked")
	}

	return d
}

// Authorize is the entry point for request handlers: it tracks one
// interaction of the given kind and reports whether the caller may proceed.
func (m *Manager) Authorize(id, interactionType string) Decision {
	interactionType = strings.TrimSpace(interactionType)
	if interactionType == "" {
		interactionType = DefaultInteractionType
	}
	return m.TrackInteraction(id, interactionType)
}

// ApplyRateLimiting probes the sliding window without recording anything.
func (m *Manager) ApplyRateLimiting(id string) RateLimitStatus {
	m.mu.Lock()
	now := m.now()
	limit := m.limits.RateLimitPerMinute
	sess, gone := m.lookupLocked(id)
	if sess == nil {
		active := len(m.sessions)
		m.mu.Unlock()

		m.reportLookup(id, false, gone, active)
		return RateLimitStatus{Reason: ReasonNotFound, Limit: limit}
	}

	window := pruneWindow(m.windows[id], now)
	m.windows[id] = window
	status := RateLimitStatus{Current: len(window), Limit: limit}
	if len(window) >= limit {
		status.Reason = ReasonRateLimited
		status.RetryAfter = secondsToNextMinute(now)
	} else {
		status.Allowed = true
		status.Remaining = limit - len(window)
	}
	m.mu.Unlock()

	return status
}

// ExtendSession adds d to a valid session's expiry. It returns false when the
// session does not exist or is no longer valid, and an error for a negative d.
func (m *Manager) ExtendSession(id string, d time.Duration) (bool, error) {
	if d < 0 {
		return false, fmt.Errorf("%w: negative extension %s", ErrInvalidOperation, d)
	}

	m.mu.Lock()
	sess, gone := m.lookupLocked(id)
	var err error
	if sess != nil {
		err = sess.Extend(d, m.now())
	}
	active := len(m.sessions)
	m.mu.Unlock()

	m.reportLookup(id, sess != nil, gone, active)
	if sess == nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	m.logger.Info().
		Str("session_id", id).
		Dur("extension", d).
		Msg("Session extended")
	return true, nil
}

// BlockSession marks a live session as blocked. The session is removed on
// its next access or sweep.
func (m *Manager) BlockSession(id string) bool {
	m.mu.Lock()
	sess, gone := m.lookupLocked(id)
	blocked := sess != nil && sess.Block()
	active := len(m.sessions)
	m.mu.Unlock()

	m.reportLookup(id, sess != nil, gone, active)
	if blocked {
		m.logger.Warn().Str("session_id", id).Msg("Session blocked")
	}
	return blocked
}

// EndSession removes a session and its rate window regardless of status.
func (m *Manager) EndSession(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	if ok {
		m.deleteLocked(id)
	}
	active := len(m.sessions)
	m.mu.Unlock()

	if ok {
		m.recorder.RecordEviction(EvictEnd, 1)
		m.recorder.SetActiveSessions(active)
		m.logger.Info().Str("session_id", id).Msg("Session ended")
	}
	return ok
}

// ListSessions validates every stored session and returns snapshots of the
// live ones ordered by creation time. Invalid sessions are evicted.
func (m *Manager) ListSessions() []Session {
	m.mu.Lock()
	now := m.now()
	out := make([]Session, 0, len(m.sessions))
	evicted := 0
	for id, sess := range m.sessions {
		if !sess.IsValid(now) {
			m.deleteLocked(id)
			evicted++
			continue
		}
		out = append(out, sess.Clone())
	}
	active := len(m.sessions)
	m.mu.Unlock()

	if evicted > 0 {
		m.recorder.RecordEviction(EvictValidate, evicted)
		m.recorder.SetActiveSessions(active)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CleanupExpiredSessions removes every session that is no longer valid and
// returns how many were removed.
func (m *Manager) CleanupExpiredSessions() int {
	m.mu.Lock()
	now := m.now()
	removed := 0
	for id, sess := range m.sessions {
		if !sess.IsValid(now) {
			m.deleteLocked(id)
			removed++
		}
	}
	active := len(m.sessions)
	m.mu.Unlock()

	m.recorder.SetActiveSessions(active)
	if removed > 0 {
		m.recorder.RecordEviction(EvictSweep, removed)
		m.logger.Info().Int("removed", removed).Msg("Cleaned up expired sessions")
	}
	return removed
}

// GetStats counts stored sessions by status without validating them.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-RateWindow)
	stats := Stats{
		Total:       len(m.sessions),
		RateWindows: len(m.windows),
	}
	for id, sess := range m.sessions {
		switch sess.Status {
		case StatusActive:
			stats.Active++
		case StatusExpired:
			stats.Expired++
		case StatusRateLimited:
			stats.RateLimited++
		case StatusBlocked:
			stats.Blocked++
		}

		recent := 0
		for _, ts := range m.windows[id] {
			if ts.After(cutoff) {
				recent++
			}
		}
		if recent >= m.limits.RateLimitPerMinute {
			stats.Throttled++
		}
	}
	return stats
}

// createLocked inserts a new session and its empty window. The loop only
// guards against live collisions; id uniqueness over the process lifetime
// comes from newID.
func (m *Manager) createLocked(ownerID string) Session {
	id := m.newID()
	for {
		if _, taken := m.sessions[id]; !taken {
			break
		}
		id = m.newID()
	}

	sess := newSession(id, ownerID, m.now(), m.limits.TTL)
	m.sessions[id] = sess
	m.windows[id] = make([]time.Time, 0, m.limits.RateLimitPerMinute)
	return sess.Clone()
}

// lookupLocked returns the live session for id. When the session exists but
// is invalid it is deleted and gone is true.
func (m *Manager) lookupLocked(id string) (sess *Session, gone bool) {
	sess, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if !sess.IsValid(m.now()) {
		m.deleteLocked(id)
		return nil, true
	}
	return sess, false
}

// deleteLocked removes a session and its rate window together.
func (m *Manager) deleteLocked(id string) {
	delete(m.sessions, id)
	delete(m.windows, id)
}

func (m *Manager) reportLookup(id string, found, gone bool, active int) {
	if found {
		return
	}
	if gone {
		m.recorder.RecordEviction(EvictValidate, 1)
		m.recorder.SetActiveSessions(active)
		m.logger.Info().Str("session_id", id).Msg("Session invalid, evicted")
		return
	}
	m.logger.Warn().Str("session_id", id).Msg("Session not found")
}

func normalizeOwner(ownerID string) string {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return AnonymousOwner
	}
	return ownerID
}

// ownedBy reports whether a caller presenting ownerID may resume sess.
// Anonymous sessions and callers that name no owner skip the check.
func ownedBy(sess *Session, ownerID string) bool {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" || sess.OwnerID == AnonymousOwner {
		return true
	}
	return sess.OwnerID == ownerID
}
