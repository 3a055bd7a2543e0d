package handlers

import (
	"net/http"

	"github.com/isdelr/neuroscan-be/internal/auth"
	"github.com/isdelr/neuroscan-be/internal/services"
	"github.com/rs/zerolog/log"
)

// ReportHandler serves a user's stored reports.
type ReportHandler struct {
	service services.ReportServiceProvider
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(service services.ReportServiceProvider) *ReportHandler {
	return &ReportHandler{service: service}
}

// List returns every report of ?user_id, oldest first.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(r.URL.Query().Get("user_id"))
	if !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"message": "A valid user_id is required"})
		return
	}
	if !auth.Permits(r.Context(), userID) {
		respondJSON(w, http.StatusForbidden, map[string]string{"message": "Token does not match user ID"})
		return
	}

	reports, err := h.service.ListReports(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to list reports")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve reports"})
		return
	}
	respondJSON(w, http.StatusOK, reports)
}
