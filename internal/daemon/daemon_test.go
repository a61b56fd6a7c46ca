package daemon

import (
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/chatguard/internal/config"
	"github.com/harun/chatguard/internal/logger"
	"github.com/harun/chatguard/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.Logging.AuditFile = filepath.Join(tmpDir, "audit.log")
	cfg.Gateway.Enabled = false
	return cfg
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{
		Level:   "info",
		Console: false,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

// createTestDaemon creates a daemon for testing with the gateway disabled
func createTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	d, err := New(testConfig(t), testLogger(t), nil)
	require.NoError(t, err)
	return d
}

func TestNew(t *testing.T) {
	d := createTestDaemon(t)

	assert.NotNil(t, d.manager)
	assert.NotNil(t, d.sweeper)
	assert.NotNil(t, d.metrics)
	assert.NotNil(t, d.audit)
	assert.NotNil(t, d.eventLoop)
	assert.NotNil(t, d.lifecycle)
	assert.Nil(t, d.gatewayServer)
	assert.Nil(t, d.watcher)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.MaxInteractions = 0

	_, err := New(cfg, testLogger(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_interactions")
}

func TestNewAppliesSessionLimits(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.TTL = time.Minute
	cfg.Session.MaxInteractions = 3
	cfg.Session.RateLimitPerMinute = 2

	d, err := New(cfg, testLogger(t), nil)
	require.NoError(t, err)

	assert.Equal(t, session.Limits{TTL: time.Minute, MaxInteractions: 3, RateLimitPerMinute: 2}, d.GetSessionManager().Limits())
}

func TestDaemonStartStop(t *testing.T) {
	d := createTestDaemon(t)

	require.NoError(t, d.Start())

	status := d.Status()
	assert.True(t, status.Running)
	assert.True(t, d.sweeper.IsRunning())

	err := d.Start()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	require.NoError(t, d.Stop())

	status = d.Status()
	assert.False(t, status.Running)
	assert.False(t, d.sweeper.IsRunning())

	err = d.Stop()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestDaemonStatus(t *testing.T) {
	d := createTestDaemon(t)

	status := d.Status()
	assert.False(t, status.Running)
	assert.Equal(t, time.Duration(0), status.Uptime)

	require.NoError(t, d.Start())
	defer d.Stop()

	d.GetSessionManager().CreateSession("alice")

	time.Sleep(10 * time.Millisecond)
	status = d.Status()
	assert.True(t, status.Running)
	assert.Greater(t, status.Uptime, time.Duration(0))
	assert.Equal(t, 1, status.Sessions.Total)
}

func TestDaemonGateway(t *testing.T) {
	cfg := testConfig(t)
	cfg.Gateway.Enabled = true
	cfg.Gateway.Port = freePort(t)
	cfg.Gateway.SharedSecret = "daemon-test-secret-01"

	d, err := New(cfg, testLogger(t), nil)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()

	require.Eventually(t, func() bool { return d.Status().GatewayAddr != "" }, 2*time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodPost, "http://"+d.Status().GatewayAddr+"/api/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+cfg.Gateway.SharedSecret)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created["session_id"])
	assert.Equal(t, 1, d.Status().Sessions.Total)
}

func TestDaemonGatewayPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Gateway.Enabled = true
	cfg.Gateway.Port = ln.Addr().(*net.TCPAddr).Port

	d, err := New(cfg, testLogger(t), nil)
	require.NoError(t, err)

	err = d.Start()
	require.Error(t, err)
	assert.False(t, d.Status().Running)
	assert.False(t, d.sweeper.IsRunning())

	_, statErr := os.Stat(PIDFilePath(cfg.DataDir))
	assert.True(t, os.IsNotExist(statErr))
}

func TestApplyConfig(t *testing.T) {
	d := createTestDaemon(t)
	require.NoError(t, d.Start())
	defer d.Stop()

	next := *d.GetConfig()
	next.Session.MaxInteractions = 7
	next.Session.RateLimitPerMinute = 3
	next.Session.CleanupInterval = time.Minute

	require.NoError(t, d.applyConfig(&next))

	assert.Equal(t, 7, d.GetSessionManager().Limits().MaxInteractions)
	assert.Equal(t, 3, d.GetSessionManager().Limits().RateLimitPerMinute)
	assert.Equal(t, 7, d.GetConfig().Session.MaxInteractions)

	d.mu.RLock()
	sweeper := d.sweeper
	d.mu.RUnlock()
	assert.Equal(t, time.Minute, sweeper.Interval())
	assert.True(t, sweeper.IsRunning())

	data, err := os.ReadFile(d.config.Logging.AuditFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "limits_reloaded")
}

func TestConfigHotReload(t *testing.T) {
	cfg := testConfig(t)
	configPath := filepath.Join(cfg.DataDir, "chatguard.json")
	loader := config.NewLoader(configPath)
	require.NoError(t, loader.Save(cfg))

	d, err := New(cfg, testLogger(t), loader)
	require.NoError(t, err)
	require.NotNil(t, d.watcher)
	require.NoError(t, d.Start())
	defer d.Stop()

	updated := *cfg
	updated.Session.MaxInteractions = 9
	require.NoError(t, loader.Save(&updated))

	assert.Eventually(t, func() bool {
		return d.GetSessionManager().Limits().MaxInteractions == 9
	}, 3*time.Second, 20*time.Millisecond)
}
