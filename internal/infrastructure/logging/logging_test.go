package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ctscan/config"
)

func TestNew_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ctscan.log")
	log, err := New(config.LogConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1}, false)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("stage started", zap.String("stage", "Training"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"stage":"Training"`)
	require.NotContains(t, string(data), "hidden")
}

func TestNew_ConsoleFormatKeepsFileJSONLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctscan.log")
	log, err := New(config.LogConfig{Level: "info", Format: "console", File: path, MaxSizeMB: 1}, false)
	require.NoError(t, err)

	log.Info("model loaded")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"level":"info"`)
	require.NotContains(t, string(data), `"level":"INFO"`)
}

func TestNew_Levels(t *testing.T) {
	log, err := New(config.LogConfig{Level: "warn"}, false)
	require.NoError(t, err)
	require.False(t, log.Core().Enabled(zapcore.InfoLevel))

	log, err = New(config.LogConfig{Level: "warn"}, true)
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zapcore.DebugLevel))

	_, err = New(config.LogConfig{Level: "loud"}, false)
	require.Error(t, err)

	_, err = New(config.LogConfig{Format: "xml"}, false)
	require.ErrorContains(t, err, "xml")
}
