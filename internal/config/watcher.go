package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ReloadFunc receives a freshly loaded and validated config.
type ReloadFunc func(cfg *Config) error

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	loader             *Loader
	onReload           ReloadFunc
	stabilityThreshold time.Duration
	logger             zerolog.Logger

	watcher  *fsnotify.Watcher
	done     chan struct{}
	timerMu  sync.Mutex
	timer    *time.Timer
	stopOnce sync.Once
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	Loader             *Loader
	OnReload           ReloadFunc
	StabilityThreshold time.Duration
	Logger             *zerolog.Logger
}

// NewWatcher creates a config file watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Loader == nil {
		return nil, fmt.Errorf("config watcher requires a loader")
	}
	if cfg.OnReload == nil {
		return nil, fmt.Errorf("config watcher requires a reload callback")
	}
	if cfg.StabilityThreshold == 0 {
		cfg.StabilityThreshold = 200 * time.Millisecond
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		loader:             cfg.Loader,
		onReload:           cfg.OnReload,
		stabilityThreshold: cfg.StabilityThreshold,
		logger:             logger.With().Str("component", "config_watcher").Logger(),
		watcher:            fsw,
		done:               make(chan struct{}),
	}, nil
}

// Start watches the directory holding the config file. Editors often replace
// the file instead of writing it, so the parent directory is watched and
// events are filtered by name.
func (w *Watcher) Start() error {
	path := w.loader.GetConfigPath()
	if err := w.watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.eventLoop(filepath.Clean(path))

	w.logger.Info().Str("path", path).Msg("Config watcher started")
	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.timerMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.timerMu.Unlock()

		if cerr := w.watcher.Close(); cerr != nil {
			err = fmt.Errorf("failed to close watcher: %w", cerr)
		}
		w.logger.Info().Msg("Config watcher stopped")
	})
	return err
}

func (w *Watcher) eventLoop(path string) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.debounce()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

// debounce collapses bursts of writes into one reload.
func (w *Watcher) debounce() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.stabilityThreshold, func() {
		select {
		case <-w.done:
			return
		default:
			w.reload()
		}
	})
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to reload config")
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Error().Err(err).Msg("Reloaded config is invalid, keeping current settings")
		return
	}
	if err := w.onReload(cfg); err != nil {
		w.logger.Error().Err(err).Msg("Failed to apply reloaded config")
		return
	}
	w.logger.Info().Msg("Config reloaded")
}
