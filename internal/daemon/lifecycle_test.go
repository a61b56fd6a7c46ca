package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLifecycleManager(t *testing.T) {
	d := createTestDaemon(t)

	lm := NewLifecycleManager(d)
	assert.NotNil(t, lm)
	assert.Equal(t, d, lm.daemon)
	assert.Equal(t, filepath.Join(d.config.DataDir, "chatguard.pid"), lm.pidFile)
}

func TestLifecycleManagerStartStop(t *testing.T) {
	d := createTestDaemon(t)
	lm := NewLifecycleManager(d)

	require.NoError(t, lm.Start())

	_, err := os.Stat(lm.pidFile)
	assert.NoError(t, err)
	assert.True(t, lm.IsRunning())

	require.NoError(t, lm.Stop())

	_, err = os.Stat(lm.pidFile)
	assert.True(t, os.IsNotExist(err))
	assert.False(t, lm.IsRunning())

	// Removing an absent PID file is not an error.
	assert.NoError(t, lm.Stop())
}

func TestLifecycleManagerGetPID(t *testing.T) {
	d := createTestDaemon(t)
	lm := NewLifecycleManager(d)

	require.NoError(t, lm.Start())
	defer lm.Stop()

	pid, err := lm.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestLifecycleManagerStalePIDFile(t *testing.T) {
	d := createTestDaemon(t)
	lm := NewLifecycleManager(d)

	// A PID that cannot belong to a live process is overwritten.
	require.NoError(t, os.WriteFile(lm.pidFile, []byte("999999999"), 0644))
	require.NoError(t, lm.Start())
	defer lm.Stop()

	pid, err := lm.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestLifecycleManagerLivePIDFile(t *testing.T) {
	d := createTestDaemon(t)
	lm := NewLifecycleManager(d)

	// The parent of the test process is alive and is not us.
	require.NoError(t, os.WriteFile(lm.pidFile, []byte(strconv.Itoa(os.Getppid())), 0644))

	err := lm.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadPID(filepath.Join(dir, "missing.pid"))
	assert.True(t, os.IsNotExist(err))

	bad := filepath.Join(dir, "bad.pid")
	require.NoError(t, os.WriteFile(bad, []byte("not-a-pid"), 0644))
	_, err = ReadPID(bad)
	assert.Error(t, err)

	good := filepath.Join(dir, "good.pid")
	require.NoError(t, os.WriteFile(good, []byte("1234\n"), 0644))
	pid, err := ReadPID(good)
	require.NoError(t, err)
	assert.Equal(t, 1234, pid)
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, ProcessAlive(os.Getpid()))
	assert.False(t, ProcessAlive(0))
	assert.False(t, ProcessAlive(-1))
}
