// Package main is the terminal client of the learning platform.
//
//	learn                      interactive prompt
//	learn health               probe the identity service
//	learn login ada@example.com
//
// The client works with or without a reachable identity service. When the
// service is down or misconfigured, login and signup fall back to a demo
// session that lives only as long as the process.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sakif/learning-platform/internal/client/cli"
	"github.com/sakif/learning-platform/internal/client/identityclient"
	"github.com/sakif/learning-platform/internal/client/modeselect"
	"github.com/sakif/learning-platform/internal/client/probe"
	"github.com/sakif/learning-platform/internal/client/session"
	"github.com/sakif/learning-platform/internal/config"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		config.Exitf("learn: %v", err)
	}

	// Client logs go to stderr so they never mix with command output.
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store session.Store = session.NewMemoryStore()
	if cfg.SessionDB != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.SessionDB), 0o700); err != nil {
			config.Exitf("learn: creating session directory: %v", err)
		}
		sqliteStore, err := session.OpenSQLite(ctx, cfg.SessionDB)
		if err != nil {
			config.Exitf("learn: %v", err)
		}
		store = sqliteStore
	}

	prober := probe.New(cfg.ServiceURL, cfg.ProbeTimeout, nil, logger)
	identity := identityclient.New(cfg.ServiceURL, cfg.AnonKey, identityclient.Options{}, logger)
	sel := modeselect.New(prober, identity, store, modeselect.Options{RecheckInterval: cfg.RecheckInterval}, logger)

	app := cli.NewApp(sel, os.Stdin, os.Stdout)
	code := app.Run(ctx, os.Args[1:])

	// os.Exit skips deferred calls.
	stop()
	if s, ok := store.(*session.SQLiteStore); ok {
		s.Close()
	}
	os.Exit(code)
}
