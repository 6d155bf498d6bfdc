// Package logging routes the process log to a rotating file. Stdout
// and stderr are never logging targets: while the UI is attached they
// are the replica terminal, and while it is not they belong to the
// debugger's own console.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	log "charm.land/log/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/periscope-debug/periscope/internal/config"
)

// Setup installs the default slog logger per the config. The returned
// closer flushes and releases the log file.
func Setup(cfg config.Log) (io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, err
	}
	sink := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	slog.SetDefault(slog.New(handler(sink, cfg.Level)))
	return sink, nil
}

// SetupWriter is Setup against an arbitrary writer.
func SetupWriter(w io.Writer, level string) {
	slog.SetDefault(slog.New(handler(w, level)))
}

func handler(w io.Writer, level string) slog.Handler {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		Formatter:       log.LogfmtFormatter,
	})
}

// Discard silences the default logger. Used by tests and by the
// version command.
func Discard() {
	slog.SetDefault(slog.New(handler(io.Discard, "fatal")))
}
