package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/isdelr/neuroscan-be/internal/auth"
	"github.com/isdelr/neuroscan-be/internal/overlay"
	"github.com/isdelr/neuroscan-be/internal/services"
	"github.com/rs/zerolog/log"
)

// AnalysisHandler handles scan uploads.
type AnalysisHandler struct {
	service  services.AnalysisServiceProvider
	maxBytes int64
}

// NewAnalysisHandler creates a new AnalysisHandler accepting uploads of up to maxUploadMB.
func NewAnalysisHandler(service services.AnalysisServiceProvider, maxUploadMB int64) *AnalysisHandler {
	return &AnalysisHandler{service: service, maxBytes: maxUploadMB << 20}
}

// Upload runs the analysis pipeline on a multipart `image` for `user_id`.
func (h *AnalysisHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || r.ContentLength > h.maxBytes {
			respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("Upload exceeds the %d MB limit", h.maxBytes>>20),
			})
			return
		}
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "No image or user ID provided"})
		return
	}

	file, _, err := r.FormFile("image")
	rawID := r.FormValue("user_id")
	if err != nil || rawID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "No image or user ID provided"})
		return
	}
	defer file.Close()

	userID, ok := parseUserID(rawID)
	if !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid user ID"})
		return
	}
	if !auth.Permits(r.Context(), userID) {
		respondJSON(w, http.StatusForbidden, map[string]string{"error": "Token does not match user ID"})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to read image"})
		return
	}

	result, err := h.service.Analyze(r.Context(), userID, data)
	if err != nil {
		switch {
		case errors.Is(err, overlay.ErrTooLarge):
			respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Image dimensions are too large"})
		case errors.Is(err, services.ErrInvalidImage):
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Uploaded file is not a readable image"})
		case errors.Is(err, services.ErrUserNotFound):
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		default:
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to analyze scan")
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to analyze image"})
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"processedImage": result.ProcessedImage,
		"report":         result.Report,
	})
}
