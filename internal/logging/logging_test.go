package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/periscope-debug/periscope/internal/config"
)

func TestSetupWritesToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "periscope.log")
	closer, err := Setup(config.Log{File: file, Level: "debug", MaxSizeMB: 1, MaxBackups: 1})
	require.NoError(t, err)
	defer closer.Close()

	slog.Info("ui enabled", "instance", "abc")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Contains(t, string(data), "ui enabled")
	require.Contains(t, string(data), "instance=abc")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "warn")

	slog.Debug("quiet")
	slog.Info("also quiet")
	slog.Warn("loud")

	out := buf.String()
	require.NotContains(t, out, "quiet")
	require.Contains(t, out, "loud")
}

func TestBadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "chatty")

	slog.Debug("hidden")
	slog.Info("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}
