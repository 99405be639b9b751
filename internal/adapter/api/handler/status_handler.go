package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Status describes what a fieldlog process is doing.
type Status struct {
	BasePath  string    `json:"base_path"`
	Following bool      `json:"following"`
	CaughtUp  bool      `json:"caught_up"`
	Items     int64     `json:"items"`
	StartedAt time.Time `json:"started_at"`
}

// StatusFunc reports the current status.
type StatusFunc func() Status

// StatusHandler serves health and status requests.
type StatusHandler struct {
	status StatusFunc
	logger *slog.Logger
}

func NewStatusHandler(status StatusFunc, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{status: status, logger: logger}
}

// HealthCheck is a simple health check endpoint.
func (h *StatusHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status reports the process status.
// GET /status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		http.Error(w, "status not available", http.StatusNotFound)
		return
	}
	h.respondWithJSON(w, http.StatusOK, h.status())
}

func (h *StatusHandler) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
