package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/isdelr/neuroscan-be/internal/auth"
	"github.com/isdelr/neuroscan-be/internal/services"
	"github.com/rs/zerolog/log"
)

// UserHandler handles HTTP requests for user management.
type UserHandler struct {
	service services.UserServiceProvider
	events  services.EventServiceProvider
	issuer  *auth.Issuer
}

// NewUserHandler creates a new UserHandler. A disabled issuer means login returns no token.
func NewUserHandler(service services.UserServiceProvider, events services.EventServiceProvider, issuer *auth.Issuer) *UserHandler {
	return &UserHandler{service: service, events: events, issuer: issuer}
}

// AuthPayload defines the structure for login requests.
type AuthPayload struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

// RegisterPayload defines the structure for registration requests.
type RegisterPayload struct {
	Name     string     `json:"name"`
	Account  string     `json:"account"`
	Password string     `json:"password"`
	Age      flexString `json:"age"`
	Sex      string     `json:"sex"`
}

// Register handles new user registration.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}

	age, ok := parseAge(string(payload.Age))
	if strings.TrimSpace(payload.Name) == "" || strings.TrimSpace(payload.Account) == "" ||
		payload.Password == "" || strings.TrimSpace(payload.Sex) == "" || !ok {
		respondJSON(w, http.StatusBadRequest, map[string]string{"message": "All fields are required"})
		return
	}

	user, err := h.service.Register(r.Context(), payload.Name, payload.Account, payload.Password, age, payload.Sex)
	if err != nil {
		if errors.Is(err, services.ErrAccountTaken) {
			respondJSON(w, http.StatusConflict, map[string]string{"message": "Account already exists"})
			return
		}
		log.Error().Err(err).Str("account", payload.Account).Msg("Failed to register user")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"message": "Registration failed"})
		return
	}

	h.recordEvent(r, "user.register", "info", "Account registered", &user.ID)
	respondJSON(w, http.StatusCreated, map[string]interface{}{"message": "Registration successful", "id": user.ID})
}

// Login handles user authentication and, when signing is configured, JWT generation.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload AuthPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}
	if strings.TrimSpace(payload.Account) == "" || payload.Password == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"message": "Account and password are required"})
		return
	}

	user, err := h.service.Authenticate(r.Context(), payload.Account, payload.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			log.Warn().Str("account", payload.Account).Msg("Failed authentication attempt")
			h.recordEvent(r, "user.login.failed", "warn", "Failed login attempt", nil)
			respondJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid account or password"})
			return
		}
		log.Error().Err(err).Str("account", payload.Account).Msg("Failed to authenticate user")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"message": "Login failed"})
		return
	}

	resp := map[string]interface{}{"message": "Login successful", "id": user.ID}
	if h.issuer != nil && h.issuer.Enabled() {
		token, err := h.issuer.Generate(user)
		if err != nil {
			log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to generate JWT")
			respondJSON(w, http.StatusInternalServerError, map[string]string{"message": "Failed to generate token"})
			return
		}
		resp["token"] = token
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *UserHandler) recordEvent(r *http.Request, eventType, level, message string, userID *int64) {
	if h.events == nil {
		return
	}
	if err := h.events.CreateEvent(r.Context(), eventType, level, message, userID); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("Failed to record event")
	}
}

func parseAge(raw string) (int, bool) {
	age, ok := parseUserID(raw)
	if !ok || age > 150 {
		return 0, false
	}
	return int(age), true
}
