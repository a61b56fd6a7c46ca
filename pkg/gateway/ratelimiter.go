package gateway

import (
	"sync"
	"time"
)

// ClientRateLimiter limits session creation per client IP with a sliding
// one-minute window. It protects the manager from session flooding; the
// per-session interaction rate is enforced by the manager itself.
type ClientRateLimiter struct {
	mu                sync.Mutex
	requests          map[string][]time.Time
	requestsPerMinute int
	now               func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewClientRateLimiter creates a limiter and starts its cleanup goroutine.
// Call Stop to release it.
func NewClientRateLimiter(requestsPerMinute int) *ClientRateLimiter {
	rl := &ClientRateLimiter{
		requests:          make(map[string][]time.Time),
		requestsPerMinute: requestsPerMinute,
		now:               time.Now,
		cleanupInterval:   5 * time.Minute,
		stopCleanup:       make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow records a request from ip and reports whether it fits the window.
// When it does not, the seconds until the oldest request leaves the window
// are returned.
func (rl *ClientRateLimiter) Allow(ip string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	window := rl.pruneLocked(ip, now)

	if len(window) >= rl.requestsPerMinute {
		retryAfter := int((window[0].Add(time.Minute).Sub(now) + time.Second - 1) / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		return false, retryAfter
	}

	rl.requests[ip] = append(window, now)
	return true, 0
}

// Tracked returns the number of clients with requests in the window.
func (rl *ClientRateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.requests)
}

func (rl *ClientRateLimiter) pruneLocked(ip string, now time.Time) []time.Time {
	cutoff := now.Add(-time.Minute)
	window := rl.requests[ip]

	kept := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(rl.requests, ip)
		return nil
	}
	rl.requests[ip] = kept
	return kept
}

func (rl *ClientRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup drops clients with no requests in the window
func (rl *ClientRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip := range rl.requests {
		rl.pruneLocked(ip, now)
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *ClientRateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
