package cli

import (
	"fmt"

	"github.com/harun/chatguard/internal/daemon"
	"github.com/harun/chatguard/internal/logger"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the chatguard daemon service",
	Long: `Start the chatguard daemon in the foreground.
The daemon serves the session API until it receives SIGINT or SIGTERM.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	loader, cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	pidFile := daemon.PIDFilePath(cfg.DataDir)
	if isRunning(pidFile) {
		return fmt.Errorf("daemon is already running (PID file: %s)", pidFile)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
		Output:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log, loader)
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "chatguard started (config: %s)\n", loader.GetConfigPath())

	return d.Wait(cmd.Context())
}

func isRunning(pidFile string) bool {
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		return false
	}
	return daemon.ProcessAlive(pid)
}
