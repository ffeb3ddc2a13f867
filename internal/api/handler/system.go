package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/iconidentify/tubevault/internal/service"
)

// SystemHandler handles health checks and tool versions.
type SystemHandler struct {
	system *service.SystemService
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(system *service.SystemService) *SystemHandler {
	return &SystemHandler{system: system}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string             `json:"status"`
	Timestamp string             `json:"timestamp"`
	Checks    *service.Readiness `json:"checks,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *SystemHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := h.system.Ready(ctx)
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    &checks,
	}
	if !checks.Ready {
		resp.Status = "error"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Versions handles GET /api/v1/system/versions.
func (h *SystemHandler) Versions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.system.Versions(r.Context()))
}

// Stats handles GET /api/v1/system/stats.
func (h *SystemHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.system.Stats())
}
