package session

import (
	"fmt"
	"maps"
	"time"
)

// Status is the lifecycle state of a session.
type Status int

const (
	StatusActive Status = iota
	StatusExpired
	StatusRateLimited
	StatusBlocked
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusExpired:
		return "expired"
	case StatusRateLimited:
		return "rate_limited"
	case StatusBlocked:
		return "blocked"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status by name so JSON payloads stay readable.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s != StatusActive
}

// Session is one user's conversation window.
//
// The Manager owns every Session it creates and mutates it only while holding
// its lock. Values handed to callers are copies made by Clone.
type Session struct {
	ID               string         `json:"id"`
	OwnerID          string         `json:"owner_id"`
	CreatedAt        time.Time      `json:"created_at"`
	ExpiresAt        time.Time      `json:"expires_at"`
	InteractionCount int            `json:"interaction_count"`
	LastActivity     time.Time      `json:"last_activity"`
	Status           Status         `json:"status"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

func newSession(id, ownerID string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:           id,
		OwnerID:      ownerID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastActivity: now,
		Status:       StatusActive,
		Metadata:     make(map[string]any),
	}
}

// transition moves an active session into a terminal state. It returns false
// when the session has already left Active.
func (s *Session) transition(to Status) bool {
	if s.Status != StatusActive || to == StatusActive {
		return false
	}
	s.Status = to
	return true
}

// IsValid reports whether the session may accept work at now. A session past
// its expiry is marked Expired the first time this is observed.
func (s *Session) IsValid(now time.Time) bool {
	if now.After(s.ExpiresAt) {
		s.transition(StatusExpired)
		return false
	}
	return s.Status == StatusActive
}

// IncrementInteraction records one interaction unless the lifetime cap has
// been reached, in which case the session becomes RateLimited.
func (s *Session) IncrementInteraction(maxInteractions int, now time.Time) bool {
	if s.InteractionCount >= maxInteractions {
		s.transition(StatusRateLimited)
		return false
	}
	s.InteractionCount++
	s.LastActivity = now
	return true
}

// Extend pushes the expiry out by d. Status is never changed.
func (s *Session) Extend(d time.Duration, now time.Time) error {
	if d < 0 {
		return fmt.Errorf("%w: negative extension %s", ErrInvalidOperation, d)
	}
	if s.Status != StatusActive {
		return fmt.Errorf("%w: cannot extend %s session", ErrInvalidOperation, s.Status)
	}
	s.ExpiresAt = s.ExpiresAt.Add(d)
	s.LastActivity = now
	return nil
}

// Annotate upserts a metadata value.
func (s *Session) Annotate(key string, value any) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	s.Metadata[key] = value
}

// Block marks the session as blocked by an external security decision.
func (s *Session) Block() bool {
	return s.transition(StatusBlocked)
}

// Clone returns a copy that shares no mutable state with s.
func (s *Session) Clone() Session {
	c := *s
	c.Metadata = maps.Clone(s.Metadata)
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	return c
}
