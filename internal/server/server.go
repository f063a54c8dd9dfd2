// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware and
// routes, and owns the lifetime of the profile store.
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Server and passes it to New, which creates:
//
//	sqlite.DB → authority (local or gotrue) → IdentityService / ProgressService → handlers
//
// This is the "composition root" pattern: every dependency is wired here
// rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/learning-platform/internal/auth"
	"github.com/sakif/learning-platform/internal/authority"
	"github.com/sakif/learning-platform/internal/config"
	"github.com/sakif/learning-platform/internal/handler"
	"github.com/sakif/learning-platform/internal/middleware"
	sqliteRepo "github.com/sakif/learning-platform/internal/repository/sqlite"
	"github.com/sakif/learning-platform/internal/service"
)

// newPasswordService is swapped in tests for a cheaper bcrypt cost.
var newPasswordService = auth.NewPasswordService

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it after graceful
// shutdown; callers that never Start (tests) call Close.
type Server struct {
	router *chi.Mux
	config config.Server
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the profile store, builds the credential authority and wires
// every route.
//
// Missing authority secrets do not stop the server: /health reports them and
// authority-backed routes answer 503 with a configuration error.
func New(cfg config.Server, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// buildAuthority returns nil when any required secret is missing.
func (s *Server) buildAuthority() (authority.Authority, error) {
	if missing := s.config.Missing(); len(missing) > 0 {
		s.logger.Warn("credential authority not configured",
			slog.Any("missing", missing),
		)
		return nil, nil
	}

	switch s.config.AuthorityDriver {
	case config.DriverGoTrue:
		return authority.NewGoTrue(s.config.AuthorityURL, s.config.AnonKey, s.config.ServiceKey, nil, s.logger), nil
	default:
		// The local authority signs its own tokens with the service key and
		// uses the authority URL as the issuer claim.
		tokens, err := auth.NewTokenService(s.config.ServiceKey, s.config.AuthorityURL, s.config.TokenTTL)
		if err != nil {
			return nil, fmt.Errorf("creating token service: %w", err)
		}
		return authority.NewLocal(s.db, newPasswordService(), tokens), nil
	}
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET  /health                → configuration flags, no auth
//	POST /signup                → apikey
//	POST /signup/retry          → apikey
//	POST /login                 → apikey
//	GET  /profile               → apikey + bearer
//	POST /progress/lessons      → apikey + bearer
//	POST /progress/quizzes      → apikey + bearer
//	POST /bootstrap-admin       → X-Bootstrap-Token, only when BOOTSTRAP_TOKEN is set
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so the Logger can attach it; Recoverer sits inside
// the Logger so a panic is still logged as a 500.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", auth.APIKeyHeader, auth.SetupTokenHeader},
		ExposedHeaders: []string{chimiddleware.RequestIDHeader},
		MaxAge:         300,
	}))

	authz, err := s.buildAuthority()
	if err != nil {
		return err
	}

	identitySvc := service.NewIdentityService(s.db, authz, service.IdentityConfig{
		Missing: s.config.Missing(),
		Tracks:  s.config.CourseTracks,
	}, s.logger)
	progressSvc := service.NewProgressService(s.db, s.logger)

	healthHandler := handler.NewHealthHandler(s.config.Presence(), s.db, s.logger)
	identityHandler := handler.NewIdentityHandler(identitySvc, s.logger)
	progressHandler := handler.NewProgressHandler(progressSvc, s.logger)

	s.router.Get("/health", healthHandler.HandleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAPIKey(s.config.AnonKey))

		r.Post("/signup", identityHandler.HandleSignup)
		r.Post("/signup/retry", identityHandler.HandleRetry)
		r.Post("/login", identityHandler.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireBearer(identitySvc))

			r.Get("/profile", identityHandler.HandleProfile)
			r.Post("/progress/lessons", progressHandler.HandleLesson)
			r.Post("/progress/quizzes", progressHandler.HandleQuiz)
		})
	})

	if s.config.BootstrapToken != "" {
		s.logger.Warn("bootstrap-admin route is enabled; unset BOOTSTRAP_TOKEN once the first admin exists")
		s.router.With(auth.RequireSetupToken(s.config.BootstrapToken)).
			Post("/bootstrap-admin", identityHandler.HandleBootstrap)
	}

	return nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start starts the HTTP server and blocks until SIGINT/SIGTERM.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("authority", s.config.AuthorityDriver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
