package main

import (
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/periscope-debug/periscope/internal/cmd"
)

func main() {
	// Load global overrides from ~/.periscope/.env.local first
	if homeDir, err := os.UserHomeDir(); err == nil {
		globalEnv := filepath.Join(homeDir, ".periscope", ".env.local")
		_ = godotenv.Load(globalEnv)
	}

	// Then load local .env.local (overrides global)
	_ = godotenv.Load(".env.local")

	if os.Getenv("PERISCOPE_PROFILE") != "" {
		go func() {
			slog.Info("Serving pprof at localhost:6060")
			if httpErr := http.ListenAndServe("localhost:6060", nil); httpErr != nil {
				slog.Error("Failed to pprof listen", "error", httpErr)
			}
		}()
	}

	cmd.Execute()
}
