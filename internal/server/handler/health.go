package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the health-check and status endpoints.
type HealthHandler struct {
	logger    *slog.Logger
	mode      string
	startedAt time.Time
	paused    func() bool
}

// NewHealthHandler creates a HealthHandler. The paused callback may be nil.
func NewHealthHandler(logger *slog.Logger, mode string, startedAt time.Time, paused func() bool) *HealthHandler {
	return &HealthHandler{
		logger:    logger,
		mode:      mode,
		startedAt: startedAt,
		paused:    paused,
	}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Status reports runtime metadata about the running instance.
// GET /api/status
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	paused := false
	if h.paused != nil {
		paused = h.paused()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"paused":         paused,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
