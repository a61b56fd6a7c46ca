package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(t *testing.T, perMinute int) (*ClientRateLimiter, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	rl := NewClientRateLimiter(perMinute)
	rl.now = func() time.Time { return now }
	t.Cleanup(rl.Stop)
	return rl, &now
}

func TestClientRateLimiter_Allow(t *testing.T) {
	rl, _ := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		ok, _ := rl.Allow("10.0.0.1")
		assert.True(t, ok, "request %d should be allowed", i+1)
	}

	ok, retryAfter := rl.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, 60, retryAfter)
}

func TestClientRateLimiter_IndependentClients(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)

	ok1, _ := rl.Allow("10.0.0.1")
	ok2, _ := rl.Allow("10.0.0.2")
	assert.True(t, ok1)
	assert.True(t, ok2)

	ok1, _ = rl.Allow("10.0.0.1")
	assert.False(t, ok1)
	assert.Equal(t, 2, rl.Tracked())
}

func TestClientRateLimiter_WindowSlides(t *testing.T) {
	rl, now := newTestLimiter(t, 2)

	rl.Allow("10.0.0.1")
	*now = now.Add(20 * time.Second)
	rl.Allow("10.0.0.1")

	ok, retryAfter := rl.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, 40, retryAfter)

	*now = now.Add(41 * time.Second)
	ok, _ = rl.Allow("10.0.0.1")
	assert.True(t, ok)
}

func TestClientRateLimiter_Cleanup(t *testing.T) {
	rl, now := newTestLimiter(t, 5)

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")
	assert.Equal(t, 2, rl.Tracked())

	*now = now.Add(2 * time.Minute)
	rl.cleanup()
	assert.Equal(t, 0, rl.Tracked())
}

func TestClientRateLimiter_StopTwice(t *testing.T) {
	rl := NewClientRateLimiter(1)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}
