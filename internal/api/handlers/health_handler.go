package handlers

import (
	"net/http"

	"github.com/isdelr/neuroscan-be/internal/models"
)

// StatsSource exposes the latest host sample.
type StatsSource interface {
	Latest() models.HostStats
}

// ClientCounter reports connected demo sessions.
type ClientCounter interface {
	ClientCount() int
}

// HealthHandler reports liveness with host load.
type HealthHandler struct {
	stats   StatsSource
	clients ClientCounter
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(stats StatsSource, clients ClientCounter) *HealthHandler {
	return &HealthHandler{stats: stats, clients: clients}
}

// Get returns {status, stats, demoClients}.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if h.stats != nil {
		resp["stats"] = h.stats.Latest()
	}
	if h.clients != nil {
		resp["demoClients"] = h.clients.ClientCount()
	}
	respondJSON(w, http.StatusOK, resp)
}
