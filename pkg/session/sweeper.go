package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const DefaultCleanupInterval = 5 * time.Minute

// Sweeper periodically removes expired sessions from a Manager. It shares
// nothing with request handling beyond the manager's lock.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper creates a sweeper for manager. A zero interval uses
// DefaultCleanupInterval.
func NewSweeper(manager *Manager, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	logger := manager.logger.With().Str("component", "session_sweeper").Logger()
	return &Sweeper{
		manager:  manager,
		interval: interval,
		logger:   logger,
	}
}

// Start runs one sweep immediately and then schedules one per interval.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper is already running")
	}

	cl := cronLogger{logger: s.logger}
	c := cron.New(cron.WithChain(
		cron.Recover(cl),
		cron.SkipIfStillRunning(cl),
	))
	c.Schedule(cron.Every(s.interval), cron.FuncJob(func() { s.SweepNow() }))

	s.SweepNow()
	c.Start()

	s.cron = c
	s.running = true

	s.logger.Info().
		Dur("interval", s.interval).
		Msg("Session sweeper started")

	return nil
}

// Stop cancels the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is not running")
	}
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	<-c.Stop().Done()

	s.logger.Info().Msg("Session sweeper stopped")
	return nil
}

// IsRunning returns whether the sweeper is scheduled.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Interval returns the sweep period.
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// SweepNow removes expired sessions immediately and returns the count.
func (s *Sweeper) SweepNow() int {
	start := time.Now()
	removed := s.manager.CleanupExpiredSessions()
	elapsed := time.Since(start)

	s.manager.recorder.RecordSweep(elapsed, removed)
	s.logger.Debug().
		Int("removed", removed).
		Dur("elapsed", elapsed).
		Msg("Session sweep finished")

	return removed
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
