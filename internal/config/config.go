// Package config loads the periscope configuration: a YAML file under
// the user config directory, with PERISCOPE_* environment variables
// taking precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       Log       `yaml:"log"`
	Telemetry Telemetry `yaml:"telemetry"`
	Terminal  Terminal  `yaml:"terminal"`
}

type Log struct {
	// File is the log destination. Logging never writes to the
	// standard streams; the terminal belongs to the debugger and the
	// UI.
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

type Terminal struct {
	// Scrollback caps retained history rows.
	Scrollback int `yaml:"scrollback"`
}

func Default() Config {
	return Config{
		Log: Log{
			File:       defaultLogFile(),
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Terminal: Terminal{Scrollback: 100_000},
	}
}

func defaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "periscope", "periscope.log")
}

// Path returns the config file location, honoring PERISCOPE_CONFIG.
func Path() string {
	if p := os.Getenv("PERISCOPE_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "periscope", "config.yaml")
}

// Load reads the file at path (missing file is fine, defaults apply),
// then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Defaults only.
		default:
			return cfg, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PERISCOPE_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv("PERISCOPE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PERISCOPE_TELEMETRY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Telemetry.Enabled = b
		}
	}
	if v := os.Getenv("PERISCOPE_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv("PERISCOPE_SCROLLBACK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Terminal.Scrollback = n
		}
	}
}
