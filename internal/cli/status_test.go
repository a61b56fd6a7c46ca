package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/harun/chatguard/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	t.Run("command exists", func(t *testing.T) {
		assert.True(t, hasCommand("status"), "status command should exist")
	})

	t.Run("help text", func(t *testing.T) {
		assert.Contains(t, helpOutput(t, "status"), "session counts")
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.duration))
		})
	}
}

func TestFetchStats(t *testing.T) {
	client, manager := newTestGateway(t)

	manager.CreateSession("alice")
	blocked := manager.CreateSession("bob")
	require.True(t, manager.BlockSession(blocked.ID))

	stats, err := fetchStats(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Blocked)

	t.Run("wrong secret", func(t *testing.T) {
		bad := *client
		bad.secret = "nope"
		_, err := fetchStats(context.Background(), &bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "UNAUTHORIZED")
	})

	t.Run("unreachable gateway", func(t *testing.T) {
		bad := *client
		bad.baseURL = "http://127.0.0.1:1"
		_, err := fetchStats(context.Background(), &bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "gateway unreachable")
	})
}

func TestPrintStats(t *testing.T) {
	var out bytes.Buffer
	printStats(&out, session.Stats{Total: 3, Active: 2, Blocked: 1, RateWindows: 3})

	assert.Contains(t, out.String(), "Sessions: 3 total, 2 active")
	assert.Contains(t, out.String(), "blocked: 1")
	assert.Contains(t, out.String(), "rate windows: 3")
}
