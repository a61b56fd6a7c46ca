package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/chatguard/internal/config"
	"github.com/harun/chatguard/internal/logger"
	"github.com/harun/chatguard/internal/metrics"
	"github.com/harun/chatguard/internal/observability"
	"github.com/harun/chatguard/internal/tracing"
	"github.com/harun/chatguard/pkg/gateway"
	"github.com/harun/chatguard/pkg/session"
	"github.com/rs/zerolog"
)

// Version is reported to the tracer resource.
var Version = "0.1.0"

// Daemon represents the chatguard service: the session manager, its sweeper
// and the gateway in front of it.
type Daemon struct {
	config *config.Config
	loader *config.Loader
	logger *logger.Logger
	log    zerolog.Logger

	// Core modules
	metrics *metrics.Metrics
	audit   *observability.AuditLogger
	manager *session.Manager
	sweeper *session.Sweeper

	// Services
	gatewayServer *gateway.Server
	watcher       *config.Watcher

	// Internal
	eventLoop *EventLoop
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status is a point-in-time view of the daemon.
type Status struct {
	Running     bool
	Uptime      time.Duration
	StartTime   time.Time
	GatewayAddr string
	Sessions    session.Stats
}

// New creates a new daemon instance. loader may be nil, in which case the
// config file is not watched for changes.
func New(cfg *config.Config, log *logger.Logger, loader *config.Loader) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:         cfg,
		loader:         loader,
		logger:         log,
		log:            log.Component("daemon"),
		ctx:            ctx,
		cancel:         cancel,
		tracingEnabled: true,
	}

	if err := tracing.InitOpenTelemetry("chatguard", Version); err != nil {
		d.log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		d.tracingEnabled = false
	}

	if err := d.initializeCoreModules(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.eventLoop = NewEventLoop(d)
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

func (d *Daemon) abort() {
	d.cancel()
	_ = d.audit.Close()
	if d.tracingEnabled {
		_ = tracing.ShutdownOpenTelemetry(context.Background())
		d.tracingEnabled = false
	}
}

// initializeCoreModules initializes the metrics registry, audit log and
// session manager in dependency order.
func (d *Daemon) initializeCoreModules() error {
	if redactor := d.logger.Redactor(); redactor != nil && d.config.Gateway.SharedSecret != "" {
		redactor.AddLiteral(d.config.Gateway.SharedSecret)
	}

	d.metrics = metrics.NewMetrics()

	if d.config.Logging.AuditFile != "" {
		if err := os.MkdirAll(d.config.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		audit, err := observability.OpenAuditLog(d.config.Logging.AuditFile)
		if err != nil {
			d.log.Warn().Err(err).Msg("Failed to open audit log, audit events disabled")
		} else {
			d.audit = audit
			d.log.Info().Str("path", d.config.Logging.AuditFile).Msg("Audit logger initialized")
		}
	}

	managerLogger := d.logger.Component("session")
	manager, err := session.NewManager(session.ManagerOptions{
		Limits:   d.config.Session.Limits(),
		Logger:   &managerLogger,
		Recorder: d.metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	d.manager = manager
	d.sweeper = session.NewSweeper(manager, d.config.Session.CleanupInterval)

	d.log.Info().
		Dur("ttl", d.config.Session.TTL).
		Int("max_interactions", d.config.Session.MaxInteractions).
		Int("rate_limit_per_minute", d.config.Session.RateLimitPerMinute).
		Msg("Session manager initialized")

	return nil
}

// initializeServices creates the gateway and the config watcher.
func (d *Daemon) initializeServices() error {
	if d.config.Gateway.Enabled {
		srv, err := gateway.NewServer(gateway.ServerOptions{
			Host:         d.config.Gateway.Host,
			Port:         d.config.Gateway.Port,
			SharedSecret: d.config.Gateway.SharedSecret,
			ReadTimeout:  d.config.Gateway.ReadTimeout,
			WriteTimeout: d.config.Gateway.WriteTimeout,

			TrustProxyHeaders: d.config.Gateway.TrustProxyHeaders,
		}, d.manager, d.metrics, d.audit, d.logger.GetZerolog())
		if err != nil {
			return fmt.Errorf("failed to create gateway server: %w", err)
		}
		d.gatewayServer = srv
	}

	if d.loader != nil {
		watcherLogger := d.logger.GetZerolog()
		watcher, err := config.NewWatcher(config.WatcherConfig{
			Loader:   d.loader,
			OnReload: d.applyConfig,
			Logger:   &watcherLogger,
		})
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		d.watcher = watcher
	}

	return nil
}

// Start starts the daemon
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.log.With().Str("trace_id", tracing.NewRequestID()).Logger()
	logger.Info().Msg("Starting chatguard daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.sweeper.Start(); err != nil {
		d.setStopped()
		_ = d.lifecycle.Stop()
		return fmt.Errorf("failed to start session sweeper: %w", err)
	}
	logger.Info().Dur("interval", d.sweeper.Interval()).Msg("Session sweeper started")

	if d.gatewayServer != nil {
		ln, err := net.Listen("tcp", d.config.Gateway.Addr())
		if err != nil {
			d.setStopped()
			_ = d.sweeper.Stop()
			_ = d.lifecycle.Stop()
			return fmt.Errorf("failed to start gateway server: %w", err)
		}

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.gatewayServer.Serve(ln); err != nil {
				d.log.Error().Err(err).Msg("Gateway server exited")
			}
		}()
		logger.Info().Str("addr", ln.Addr().String()).Msg("Gateway server started")
	}

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start config watcher, hot reload disabled")
		} else {
			logger.Info().Str("path", d.loader.GetConfigPath()).Msg("Config watcher started")
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.eventLoop.Run(d.ctx)
	}()

	logger.Info().Msg("Daemon started successfully")

	return nil
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Stop stops the daemon
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.log.Info().Msg("Stopping chatguard daemon")

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.log.Error().Err(err).Msg("Failed to stop config watcher")
		}
	}

	if d.gatewayServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := d.gatewayServer.Stop(ctx); err != nil {
			d.log.Error().Err(err).Msg("Failed to stop gateway server")
		}
		cancel()
	}

	d.mu.RLock()
	sweeper := d.sweeper
	d.mu.RUnlock()
	if sweeper.IsRunning() {
		if err := sweeper.Stop(); err != nil {
			d.log.Error().Err(err).Msg("Failed to stop session sweeper")
		}
	}

	d.cancel()

	// Wait for goroutines to finish (with timeout)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info().Msg("All goroutines stopped")
	case <-time.After(5 * time.Second):
		d.log.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		d.log.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if d.tracingEnabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			d.log.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}

	if err := d.audit.Close(); err != nil {
		d.log.Error().Err(err).Msg("Failed to close audit logger")
	}

	d.log.Info().Msg("Daemon stopped successfully")

	return nil
}

// applyConfig is the hot-reload callback. Session limits and the sweep
// interval take effect immediately; gateway and logging changes need a
// restart.
func (d *Daemon) applyConfig(cfg *config.Config) error {
	limits := cfg.Session.Limits()
	if err := d.manager.UpdateLimits(limits); err != nil {
		return err
	}

	d.mu.Lock()
	previous := d.config
	next := *previous
	next.Session = cfg.Session
	d.config = &next
	d.mu.Unlock()

	if cfg.Session.CleanupInterval != previous.Session.CleanupInterval {
		d.restartSweeper(cfg.Session.CleanupInterval)
	}
	if cfg.Gateway != previous.Gateway {
		d.log.Warn().Msg("Gateway settings changed, restart chatguard to apply them")
	}

	d.audit.ConfigEvent(d.ctx, "limits_reloaded", "config_watcher", map[string]interface{}{
		"ttl":                   limits.TTL.String(),
		"max_interactions":      limits.MaxInteractions,
		"rate_limit_per_minute": limits.RateLimitPerMinute,
		"cleanup_interval":      cfg.Session.CleanupInterval.String(),
	})
	d.log.Info().
		Dur("ttl", limits.TTL).
		Int("max_interactions", limits.MaxInteractions).
		Int("rate_limit_per_minute", limits.RateLimitPerMinute).
		Msg("Session limits reloaded")

	return nil
}

func (d *Daemon) restartSweeper(interval time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	wasRunning := d.sweeper.IsRunning()
	if wasRunning {
		if err := d.sweeper.Stop(); err != nil {
			d.log.Error().Err(err).Msg("Failed to stop session sweeper")
		}
	}
	d.sweeper = session.NewSweeper(d.manager, interval)
	if wasRunning {
		if err := d.sweeper.Start(); err != nil {
			d.log.Error().Err(err).Msg("Failed to restart session sweeper")
		}
	}
}

// Status returns the current daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:  d.running,
		Sessions: d.manager.GetStats(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}
	if d.gatewayServer != nil {
		if addr := d.gatewayServer.Addr(); addr != nil {
			status.GatewayAddr = addr.String()
		}
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, or until ctx is cancelled, then stops
// the daemon.
func (d *Daemon) Wait(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.log.Info().Str("signal", sig.String()).Msg("Received signal")
	case <-ctx.Done():
	}

	return d.Stop()
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// GetSessionManager returns the session manager
func (d *Daemon) GetSessionManager() *session.Manager {
	return d.manager
}

// GetGatewayServer returns the gateway server, nil when disabled
func (d *Daemon) GetGatewayServer() *gateway.Server {
	return d.gatewayServer
}

// GetMetrics returns the metrics registry
func (d *Daemon) GetMetrics() *metrics.Metrics {
	return d.metrics
}
