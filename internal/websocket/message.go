package websocket

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

// AnalyzeRequest is the payload of an "analyze" message from the demo page.
type AnalyzeRequest struct {
	Image string `json:"image"` // base64, optionally a data URL
}

func encode(action string, payload interface{}) []byte {
	data, err := json.Marshal(Message{Action: action, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("action", action).Msg("Error marshalling websocket message")
		return nil
	}
	return data
}

// NewStatusMessage reports pipeline progress.
func NewStatusMessage(status string) []byte {
	return encode("status", map[string]string{"status": status})
}

// NewResultMessage carries a finished demo run.
func NewResultMessage(payload interface{}) []byte {
	return encode("result", payload)
}

// NewErrorMessage reports a failure to the client.
func NewErrorMessage(msg string) []byte {
	return encode("error", map[string]string{"message": msg})
}
