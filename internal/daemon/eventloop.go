package daemon

import (
	"context"
	"time"
)

// EventLoop handles the main event processing loop
type EventLoop struct {
	daemon   *Daemon
	interval time.Duration
}

// NewEventLoop creates a new event loop
func NewEventLoop(d *Daemon) *EventLoop {
	return &EventLoop{
		daemon:   d,
		interval: 30 * time.Second,
	}
}

// Run runs the event loop with periodic maintenance tasks
func (e *EventLoop) Run(ctx context.Context) {
	e.daemon.log.Info().Msg("Event loop started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.daemon.log.Info().Msg("Event loop stopping")
			return

		case <-ticker.C:
			e.processTasks()
		}
	}
}

// processTasks logs session stats for monitoring. Expiry itself is handled
// by the sweeper.
func (e *EventLoop) processTasks() {
	stats := e.daemon.manager.GetStats()
	if stats.Total == 0 {
		return
	}

	e.daemon.log.Debug().
		Int("total", stats.Total).
		Int("active", stats.Active).
		Int("expired", stats.Expired).
		Int("rate_limited", stats.RateLimited).
		Int("blocked", stats.Blocked).
		Int("throttled", stats.Throttled).
		Msg("Session stats")
}
