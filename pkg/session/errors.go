package session

import "errors"

var (
	ErrSessionNotFound        = errors.New("session not found")
	ErrRateLimitExceeded      = errors.New("session rate limit exceeded")
	ErrInteractionCapExceeded = errors.New("session interaction cap exceeded")
	ErrInvalidOperation       = errors.New("invalid session operation")
)

// Reason explains why an interaction was rejected.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNotFound       Reason = "not_found"
	ReasonRateLimited    Reason = "rate_limited"
	ReasonInteractionCap Reason = "interaction_cap"
)

// Err maps the reason to its sentinel error, or nil for ReasonNone.
func (r Reason) Err() error {
	switch r {
	case ReasonNotFound:
		return ErrSessionNotFound
	case ReasonRateLimited:
		return ErrRateLimitExceeded
	case ReasonInteractionCap:
		return ErrInteractionCapExceeded
	default:
		return nil
	}
}
