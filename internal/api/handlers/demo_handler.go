package handlers

import (
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/isdelr/neuroscan-be/internal/models"
	"github.com/isdelr/neuroscan-be/internal/overlay"
	"github.com/isdelr/neuroscan-be/internal/services"
	ws "github.com/isdelr/neuroscan-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

//go:embed static/demo.html
var demoPage []byte

const demoTimeout = 2 * time.Minute

// DemoHandler serves the interactive detection demo and its websocket.
type DemoHandler struct {
	hub      *ws.Hub
	service  services.AnalysisServiceProvider
	upgrader websocket.Upgrader
}

// NewDemoHandler creates a new DemoHandler.
func NewDemoHandler(hub *ws.Hub, service services.AnalysisServiceProvider) *DemoHandler {
	return &DemoHandler{
		hub:     hub,
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The page is served by this process; CORS does not apply to websockets.
				return true
			},
		},
	}
}

// demoResult is the payload of a "result" message.
type demoResult struct {
	Original   string             `json:"original"`
	Processed  string             `json:"processed"`
	Detections []models.Detection `json:"detections"`
}

type inbound struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// Page serves the single-page demo.
func (h *DemoHandler) Page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(demoPage)
}

// Serve upgrades the connection and attaches it to the hub under a fresh session id.
func (h *DemoHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	client := ws.NewClient(h.hub, conn, uuid.New().String())
	h.hub.Join(client)

	go client.WritePump()
	go func() {
		client.ReadPump(h.handleMessage)
		h.hub.Leave(client)
	}()
}

func (h *DemoHandler) handleMessage(client *ws.Client, message []byte) {
	var msg inbound
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Warn().Err(err).Str("session_id", client.SessionID).Msg("Error decoding websocket message")
		h.hub.SendTo(client.SessionID, ws.NewErrorMessage("Malformed message"))
		return
	}

	switch msg.Action {
	case "analyze":
		var req ws.AnalyzeRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.Image == "" {
			h.hub.SendTo(client.SessionID, ws.NewErrorMessage("No image provided"))
			return
		}
		data, err := decodeDataURL(req.Image)
		if err != nil {
			h.hub.SendTo(client.SessionID, ws.NewErrorMessage("Image is not valid base64"))
			return
		}
		// Off the read loop so pongs keep arriving during inference.
		go h.analyze(client.SessionID, data)

	default:
		log.Warn().Str("action", msg.Action).Msg("Unknown websocket action received")
		h.hub.SendTo(client.SessionID, ws.NewErrorMessage("Unknown action: "+msg.Action))
	}
}

func (h *DemoHandler) analyze(sessionID string, data []byte) {
	h.hub.SendTo(sessionID, ws.NewStatusMessage("processing"))

	ctx, cancel := context.WithTimeout(context.Background(), demoTimeout)
	defer cancel()

	preview, err := h.service.Preview(ctx, data)
	if err != nil {
		if errors.Is(err, overlay.ErrTooLarge) {
			h.hub.SendTo(sessionID, ws.NewErrorMessage("Image dimensions are too large"))
			return
		}
		if errors.Is(err, services.ErrInvalidImage) {
			h.hub.SendTo(sessionID, ws.NewErrorMessage("Uploaded file is not a readable image"))
			return
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("Demo analysis failed")
		h.hub.SendTo(sessionID, ws.NewErrorMessage("Analysis failed"))
		return
	}

	h.hub.SendTo(sessionID, ws.NewResultMessage(demoResult{
		Original:   preview.OriginalImage,
		Processed:  preview.ProcessedImage,
		Detections: preview.Detections,
	}))
}

// decodeDataURL accepts raw base64 or a "data:<mime>;base64," URL.
func decodeDataURL(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}
