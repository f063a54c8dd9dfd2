package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/learning-platform/internal/model"
)

// Pinger reports whether the profile store is usable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	flags  model.ConfigFlags
	store  Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler reporting flags.
func NewHealthHandler(flags model.ConfigFlags, store Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{flags: flags, store: store, logger: logger}
}

// HandleHealth reports configuration completeness.
//
// HTTP: GET /health
//
//	200 {"status":"ok","config":{"hasUrl":true,"hasAnonKey":true,"hasServiceKey":true,"allConfigured":true}}
//
// A missing secret still answers 200 with status "misconfigured", since the
// service itself is up and the flags say what is wrong. Only an unusable
// profile store turns this into a 503.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := model.HealthStatus{Status: "ok", Config: h.flags}
	if !h.flags.Complete() {
		body.Status = "misconfigured"
	}

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Error("health: profile store unavailable", slog.String("error", err.Error()))
		body.Status = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}

	writeJSON(w, http.StatusOK, body)
}
