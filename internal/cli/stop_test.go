package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopCommand(t *testing.T) {
	t.Run("command exists", func(t *testing.T) {
		assert.True(t, hasCommand("stop"), "stop command should exist")
	})

	t.Run("help text", func(t *testing.T) {
		helpText := helpOutput(t, "stop")
		assert.Contains(t, helpText, "Stop the chatguard daemon service")
		assert.Contains(t, helpText, "timeout")
	})
}

func TestStopDaemon(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("no PID file", func(t *testing.T) {
		_, err := stopDaemon(filepath.Join(tmpDir, "missing.pid"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not running")
	})

	t.Run("stale PID file is removed", func(t *testing.T) {
		pidFile := filepath.Join(tmpDir, "stale.pid")
		// PIDs are capped well below this on Linux
		require.NoError(t, os.WriteFile(pidFile, []byte("999999999"), 0644))

		_, err := stopDaemon(pidFile)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stale")

		_, statErr := os.Stat(pidFile)
		assert.True(t, os.IsNotExist(statErr))
	})
}
