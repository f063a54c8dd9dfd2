// Package main is the entry point for the identity service.
//
// MAIN PACKAGE IN GO:
// main stays minimal. It reads configuration, creates the logger, and
// starts the server. All actual logic lives in internal/ packages.
//
// Configuration comes from the environment (see config.Server):
//
//	AUTHORITY_URL=http://localhost:8080 \
//	AUTHORITY_ANON_KEY=... AUTHORITY_SERVICE_KEY=$(openssl rand -hex 32) \
//	go run ./cmd/server
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/learning-platform/internal/config"
	"github.com/sakif/learning-platform/internal/server"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		config.Exitf("identity: %v", err)
	}

	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	// Ensure the data directory exists (like `mkdir -p`).
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
