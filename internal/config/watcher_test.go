package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWatcher_RequiresArguments(t *testing.T) {
	_, err := NewWatcher(WatcherConfig{OnReload: func(*Config) error { return nil }})
	assert.Error(t, err)

	_, err = NewWatcher(WatcherConfig{Loader: NewLoader("x.json")})
	assert.Error(t, err)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "chatguard.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"session": {"rate_limit_per_minute": 5}}`), 0644))

	var (
		mu       sync.Mutex
		reloaded []*Config
	)
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	w, err := NewWatcher(WatcherConfig{
		Loader:             NewLoader(configPath),
		StabilityThreshold: 20 * time.Millisecond,
		Logger:             &logger,
		OnReload: func(cfg *Config) error {
			mu.Lock()
			reloaded = append(reloaded, cfg)
			mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "other.json"), []byte(`{}`), 0644))
	require.NoError(t, os.WriteFile(configPath, []byte(`{"session": {"rate_limit_per_minute": 7}}`), 0644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reloaded) > 0 && reloaded[len(reloaded)-1].Session.RateLimitPerMinute == 7
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherSkipsInvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "chatguard.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{}`), 0644))

	var (
		mu    sync.Mutex
		calls int
	)
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	w, err := NewWatcher(WatcherConfig{
		Loader:             NewLoader(configPath),
		StabilityThreshold: 20 * time.Millisecond,
		Logger:             &logger,
		OnReload: func(*Config) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(configPath, []byte(`{"session": {"max_interactions": -4}}`), 0644))
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	w, err := NewWatcher(WatcherConfig{
		Loader:   NewLoader(filepath.Join(tmpDir, "chatguard.json")),
		OnReload: func(*Config) error { return nil },
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
