package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Nastaran-Nourbakhsh/nova/internal/api/response"
)

// DatabasePinger reports storage liveness for the health endpoint.
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	db DatabasePinger
}

// NewHealthHandler creates a new health handler. db may be nil, in which case
// the endpoint reports liveness only.
func NewHealthHandler(db DatabasePinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			slog.Error("Health check failed, database unreachable", "error", err)
			response.RespondError(w, http.StatusServiceUnavailable, "Service Unavailable", "database unreachable")

			return
		}
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health check response", "error", err)
	}
}
