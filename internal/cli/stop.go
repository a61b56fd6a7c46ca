package cli

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/harun/chatguard/internal/daemon"
	"github.com/spf13/cobra"
)

var (
	stopTimeout int
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the chatguard daemon service",
	Long: `Stop the chatguard daemon service gracefully.
Sends SIGTERM to the daemon and waits for it to shut down.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "timeout in seconds to wait for daemon to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	pidFile := daemon.PIDFilePath(cfg.DataDir)
	out := cmd.OutOrStdout()

	pid, err := stopDaemon(pidFile)
	if err != nil {
		return err
	}

	// Wait for process to stop with timeout
	deadline := time.Now().Add(time.Duration(stopTimeout) * time.Second)
	for time.Now().Before(deadline) {
		if !daemon.ProcessAlive(pid) {
			fmt.Fprintln(out, "Daemon stopped successfully")
			os.Remove(pidFile)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	// Force kill if timeout
	fmt.Fprintln(out, "Timeout reached, sending SIGKILL...")

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}

	os.Remove(pidFile)
	fmt.Fprintln(out, "Daemon killed")
	return nil
}

// stopDaemon sends SIGTERM to the process named in pidFile and returns its PID.
// A stale PID file is removed.
func stopDaemon(pidFile string) (int, error) {
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("daemon is not running")
		}
		return 0, err
	}

	if !daemon.ProcessAlive(pid) {
		os.Remove(pidFile)
		return 0, fmt.Errorf("daemon is not running (removed stale PID file)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return 0, fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	return pid, nil
}
