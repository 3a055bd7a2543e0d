package handlers

import (
	"net/http"
	"strconv"

	"github.com/isdelr/neuroscan-be/internal/auth"
	"github.com/isdelr/neuroscan-be/internal/services"
	"github.com/rs/zerolog/log"
)

const maxEventLimit = 200

// EventHandler handles HTTP requests related to system events.
type EventHandler struct {
	service services.EventServiceProvider
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(service services.EventServiceProvider) *EventHandler {
	return &EventHandler{service: service}
}

// GetRecent handles the request to get recent activity/events.
func (h *EventHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20 // Default limit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	// Anonymous callers only see system-wide events.
	var userID *int64
	if claims, ok := auth.ClaimsFrom(r.Context()); ok {
		userID = &claims.UserID
	}

	events, err := h.service.GetRecentEvents(r.Context(), limit, userID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve events")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve events"})
		return
	}
	respondJSON(w, http.StatusOK, events)
}
