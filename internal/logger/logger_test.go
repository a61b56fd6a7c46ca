package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreGlobal(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
}

func TestNew(t *testing.T) {
	restoreGlobal(t)

	t.Run("console output", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Level: "info", Console: true, Output: &buf})
		require.NoError(t, err)
		defer l.Close()

		l.Info().Str("session_id", "s-1").Msg("Session created")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "s-1", entry["session_id"])
		assert.Equal(t, "Session created", entry["message"])
		assert.Contains(t, entry, "time")
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "chatguard.log")

		l, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		l.Info().Msg("test message")
		require.NoError(t, l.Close())

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "test message")
	})

	t.Run("console and file", func(t *testing.T) {
		var buf bytes.Buffer
		logFile := filepath.Join(t.TempDir(), "chatguard.log")

		l, err := New(Config{Level: "info", Console: true, Output: &buf, File: logFile})
		require.NoError(t, err)

		l.Error().Msg("both sinks")
		require.NoError(t, l.Close())

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "both sinks")
		assert.Contains(t, buf.String(), "both sinks")
	})

	t.Run("redaction", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Level: "info", Console: true, Output: &buf, Redaction: true})
		require.NoError(t, err)
		defer l.Close()
		require.NotNil(t, l.Redactor())

		l.Redactor().AddLiteral("hunter2-admin-secret")
		l.Info().Str("header", "Bearer abc.def.ghi").Str("raw", "hunter2-admin-secret").Msg("request")

		assert.NotContains(t, buf.String(), "abc.def.ghi")
		assert.NotContains(t, buf.String(), "hunter2-admin-secret")
		assert.Contains(t, buf.String(), redactedMarker)
	})

	t.Run("no redaction", func(t *testing.T) {
		l, err := New(Config{Level: "info", Console: true, Output: &bytes.Buffer{}})
		require.NoError(t, err)
		assert.Nil(t, l.Redactor())
	})
}

func TestNew_Levels(t *testing.T) {
	restoreGlobal(t)

	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l, err := New(Config{Level: tt.level, Console: true, Output: &bytes.Buffer{}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.GetZerolog().GetLevel())
		})
	}
}

func TestNew_SetsGlobalLogger(t *testing.T) {
	restoreGlobal(t)

	var buf bytes.Buffer
	_, err := New(Config{Level: "info", Console: true, Output: &buf})
	require.NoError(t, err)

	log.Info().Msg("via global")
	assert.Contains(t, buf.String(), "via global")
}

func TestComponent(t *testing.T) {
	restoreGlobal(t)

	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Console: true, Output: &buf})
	require.NoError(t, err)

	gw := l.Component("gateway")
	gw.Info().Msg("listening")

	assert.Contains(t, buf.String(), `"component":"gateway"`)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.Equal(t, 7, cfg.MaxAge)
}
