package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/isdelr/neuroscan-be/internal/auth"
	"github.com/isdelr/neuroscan-be/internal/services"
	"github.com/rs/zerolog/log"
)

// ChatHandler handles follow-up questions about generated reports.
type ChatHandler struct {
	service services.ChatServiceProvider
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(service services.ChatServiceProvider) *ChatHandler {
	return &ChatHandler{service: service}
}

// PredictPayload defines the structure for chat requests.
type PredictPayload struct {
	UserID    flexString `json:"user_id"`
	InputText string     `json:"input_text"`
}

// Predict appends the question to the user's conversation and returns the reply with the full history.
func (h *ChatHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var payload PredictPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	key := services.UserKey(string(payload.UserID))
	if key == "" || strings.TrimSpace(payload.InputText) == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing user_id or input_text"})
		return
	}
	if _, hasToken := auth.ClaimsFrom(r.Context()); hasToken {
		if id, ok := parseUserID(key); !ok || !auth.Permits(r.Context(), id) {
			respondJSON(w, http.StatusForbidden, map[string]string{"error": "Token does not match user ID"})
			return
		}
	}

	reply, messages, err := h.service.Ask(r.Context(), key, payload.InputText)
	if err != nil {
		log.Error().Err(err).Str("user_id", key).Msg("Chat completion failed")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to get a reply"})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":  reply,
		"messages": messages,
	})
}
