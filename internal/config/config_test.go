package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, 100_000, cfg.Terminal.Scrollback)
	require.False(t, cfg.Telemetry.Enabled)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
telemetry:
  enabled: true
  endpoint: https://example.test/events
terminal:
  scrollback: 500
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Telemetry.Enabled)
	require.Equal(t, "https://example.test/events", cfg.Telemetry.Endpoint)
	require.Equal(t, 500, cfg.Terminal.Scrollback)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	t.Setenv("PERISCOPE_LOG_LEVEL", "warn")
	t.Setenv("PERISCOPE_TELEMETRY", "1")
	t.Setenv("PERISCOPE_SCROLLBACK", "250")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.Log.Level)
	require.True(t, cfg.Telemetry.Enabled)
	require.Equal(t, 250, cfg.Terminal.Scrollback)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: [unterminated"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
