package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"vidloader/internal/config"
	"vidloader/internal/license"
)

// GuardStatsSource exposes activation guard statistics. The entitlement
// gate implements it.
type GuardStatsSource interface {
	ActivationGuardStats() license.GuardStats
}

// HealthHandler handles liveness requests
type HealthHandler struct {
	started time.Time
	guard   GuardStatsSource
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler. guard may be nil.
func NewHealthHandler(logger *slog.Logger, guard GuardStatsSource) *HealthHandler {
	return &HealthHandler{
		started: time.Now(),
		guard:   guard,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthResponse answers GET /healthz
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	ActivationGuard *license.GuardStats `json:"activation_guard,omitempty"`
}

// HealthCheck handles GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.logger.DebugContext(r.Context(), "health check")
	resp := HealthResponse{
		Status:  "ok",
		Service: config.AppName,
		Version: config.AppVersion,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	}
	if h.guard != nil {
		stats := h.guard.ActivationGuardStats()
		resp.ActivationGuard = &stats
	}
	render.JSON(w, r, resp)
}
