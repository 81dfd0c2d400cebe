package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  log.Level
	}{
		{"debug", log.DebugLevel},
		{"INFO", log.InfoLevel},
		{"warn", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"fatal", log.FatalLevel},
		{"bogus", log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}
}

func TestConfigure_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chair.log")

	require.NoError(t, Configure("debug", path, true))
	defer SetOutput(os.Stderr)

	Debug("relay switched", "relay", "smoke")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "relay switched")
	assert.Equal(t, log.DebugLevel, Logger.GetLevel())
}

func TestConfigure_EnvLevel(t *testing.T) {
	t.Setenv("CHAIR_LOG_LEVEL", "warn")

	require.NoError(t, Configure("", "", true))
	defer SetOutput(os.Stderr)

	assert.Equal(t, log.WarnLevel, Logger.GetLevel())
}

func TestNewStyledLogger_UsesConfiguredOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetLevel("info")

	component := NewStyledLogger("Relay")
	component.Warn("unknown relay", "relay", "warp")

	assert.Contains(t, buf.String(), "Relay")
	assert.Contains(t, buf.String(), "unknown relay")
}
