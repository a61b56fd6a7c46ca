package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// PIDFileName is the name of the PID file inside the data directory.
const PIDFileName = "chatguard.pid"

// PIDFilePath returns the PID file location for a data directory.
func PIDFilePath(dataDir string) string {
	return filepath.Join(dataDir, PIDFileName)
}

// LifecycleManager manages the daemon PID file.
type LifecycleManager struct {
	daemon  *Daemon
	pidFile string
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager(d *Daemon) *LifecycleManager {
	return &LifecycleManager{
		daemon:  d,
		pidFile: PIDFilePath(d.config.DataDir),
	}
}

// Start writes the PID file, refusing to start when another live process
// already owns it.
func (l *LifecycleManager) Start() error {
	if dir := filepath.Dir(l.pidFile); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if pid, err := ReadPID(l.pidFile); err == nil && pid != os.Getpid() && ProcessAlive(pid) {
		return fmt.Errorf("daemon already running with PID %d", pid)
	}

	if err := l.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	l.daemon.log.Info().
		Str("pid_file", l.pidFile).
		Int("pid", os.Getpid()).
		Msg("Lifecycle manager started")

	return nil
}

// Stop removes the PID file
func (l *LifecycleManager) Stop() error {
	if err := os.Remove(l.pidFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}

	l.daemon.log.Info().Msg("Lifecycle manager stopped")

	return nil
}

// writePIDFile writes the current process ID to the PID file
func (l *LifecycleManager) writePIDFile() error {
	return os.WriteFile(l.pidFile, []byte(strconv.Itoa(os.Getpid())), 0644)
}

// GetUptime returns the daemon uptime
func (l *LifecycleManager) GetUptime() time.Duration {
	return l.daemon.Status().Uptime
}

// GetPID returns the daemon PID from the PID file
func (l *LifecycleManager) GetPID() (int, error) {
	return ReadPID(l.pidFile)
}

// IsRunning checks if the process named in the PID file is alive
func (l *LifecycleManager) IsRunning() bool {
	pid, err := l.GetPID()
	if err != nil {
		return false
	}
	return ProcessAlive(pid)
}

// ReadPID parses a PID file.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}

	return pid, nil
}

// ProcessAlive reports whether a process with the given PID exists.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so we need to send signal 0
	return process.Signal(syscall.Signal(0)) == nil
}
