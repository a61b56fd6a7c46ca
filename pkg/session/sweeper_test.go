package session

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSweeper(t *testing.T) {
	m, _ := setupTestManager(t, Limits{})

	sweeper := NewSweeper(m, time.Minute)
	assert.NotNil(t, sweeper)
	assert.Equal(t, m, sweeper.manager)
	assert.Equal(t, time.Minute, sweeper.Interval())
	assert.False(t, sweeper.IsRunning())
}

func TestNewSweeper_DefaultInterval(t *testing.T) {
	m, _ := setupTestManager(t, Limits{})

	sweeper := NewSweeper(m, 0)
	assert.Equal(t, DefaultCleanupInterval, sweeper.Interval())
}

func TestSweeperStartStop(t *testing.T) {
	m, _ := setupTestManager(t, Limits{})
	sweeper := NewSweeper(m, time.Hour)

	err := sweeper.Start()
	require.NoError(t, err)
	assert.True(t, sweeper.IsRunning())

	err = sweeper.Start()
	assert.Error(t, err)

	err = sweeper.Stop()
	assert.NoError(t, err)
	assert.False(t, sweeper.IsRunning())

	err = sweeper.Stop()
	assert.Error(t, err)

	// A stopped sweeper can be started again.
	require.NoError(t, sweeper.Start())
	require.NoError(t, sweeper.Stop())
}

func TestSweeperRunsImmediatelyOnStart(t *testing.T) {
	m, clock := setupTestManager(t, Limits{TTL: time.Minute})

	m.CreateSession("a")
	m.CreateSession("b")
	clock.Advance(2 * time.Minute)
	live := m.CreateSession("c")

	sweeper := NewSweeper(m, time.Hour)
	require.NoError(t, sweeper.Start())
	defer sweeper.Stop()

	stats := m.GetStats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.RateWindows)

	_, ok := m.ValidateSession(live.ID)
	assert.True(t, ok)
}

func TestSweeperSweepNow(t *testing.T) {
	clock := newFakeClock()
	rec := newCountingRecorder()
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	m, err := NewManager(ManagerOptions{
		Limits:   Limits{TTL: time.Minute},
		Logger:   &logger,
		Recorder: rec,
		Now:      clock.Now,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		m.CreateSession("user")
	}
	blocked := m.CreateSession("user")
	require.True(t, m.BlockSession(blocked.ID))

	sweeper := NewSweeper(m, time.Minute)
	assert.Equal(t, 1, sweeper.SweepNow())

	clock.Advance(time.Hour)
	assert.Equal(t, 3, sweeper.SweepNow())
	assert.Zero(t, sweeper.SweepNow())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 3, rec.sweeps)
	assert.Equal(t, 4, rec.evictions[EvictSweep])
	assertPaired(t, m)
}

func TestSweeperScheduledRun(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a scheduled sweep")
	}

	m, clock := setupTestManager(t, Limits{TTL: time.Minute})
	sweeper := NewSweeper(m, time.Second)
	require.NoError(t, sweeper.Start())
	defer sweeper.Stop()

	m.CreateSession("a")
	clock.Advance(time.Hour)

	assert.Eventually(t, func() bool {
		return m.GetStats().Total == 0
	}, 5*time.Second, 50*time.Millisecond)
}
