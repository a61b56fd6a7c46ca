package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/harun/chatguard/internal/daemon"
	"github.com/harun/chatguard/pkg/session"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show the current status of the chatguard daemon and its session counts.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	out := cmd.OutOrStdout()
	pidFile := daemon.PIDFilePath(cfg.DataDir)

	pid, err := daemon.ReadPID(pidFile)
	if err != nil || !daemon.ProcessAlive(pid) {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}

	fmt.Fprintf(out, "Status: running\n")
	fmt.Fprintf(out, "PID: %d\n", pid)

	// PID file mtime approximates the start time
	if fileInfo, err := os.Stat(pidFile); err == nil {
		fmt.Fprintf(out, "Uptime: %s\n", formatDuration(time.Since(fileInfo.ModTime())))
	}

	if !cfg.Gateway.Enabled {
		return nil
	}

	stats, err := fetchStats(cmd.Context(), newAPIClient(cfg))
	if err != nil {
		fmt.Fprintf(out, "Sessions: unavailable (%v)\n", err)
		return nil
	}
	printStats(out, stats)
	return nil
}

func fetchStats(ctx context.Context, client *apiClient) (session.Stats, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var stats session.Stats
	err := client.do(ctx, http.MethodGet, "/api/sessions/stats", nil, &stats)
	return stats, err
}

func printStats(out io.Writer, stats session.Stats) {
	fmt.Fprintf(out, "Sessions: %d total, %d active\n", stats.Total, stats.Active)
	fmt.Fprintf(out, "  expired: %d  rate limited: %d  blocked: %d  throttled: %d\n",
		stats.Expired, stats.RateLimited, stats.Blocked, stats.Throttled)
	fmt.Fprintf(out, "  rate windows: %d\n", stats.RateWindows)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
