package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the running configuration summary.
type StatusHandler struct {
	Mode        string
	Destination string
	Need        float64
	Venues      []string
	FeeVersion  string
	StartedAt   time.Time
}

// GetStatus responds with the mode, destination and enabled venues.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":        h.Mode,
		"destination": h.Destination,
		"need":        h.Need,
		"venues":      h.Venues,
		"fee_version": h.FeeVersion,
		"started_at":  h.StartedAt.UTC().Format(time.RFC3339),
		"uptime":      time.Since(h.StartedAt).Round(time.Second).String(),
	})
}
