package websocket

import "github.com/rs/zerolog/log"

type envelope struct {
	sessionID string
	message   []byte
}

// Hub maintains the set of active demo clients and routes messages to them.
// All client bookkeeping happens on the Run goroutine.
type Hub struct {
	// Registered clients, keyed by session ID.
	clients map[string]*Client

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	direct chan envelope
	count  chan chan int
	done   chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		direct:     make(chan envelope, 64),
		count:      make(chan chan int),
		done:       make(chan struct{}),
	}
}

// Run starts the Hub's message processing loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for id, client := range h.clients {
				close(client.Send)
				delete(h.clients, id)
			}
			return
		case client := <-h.Register:
			h.clients[client.SessionID] = client
			log.Info().Int("total_clients", len(h.clients)).Str("session_id", client.SessionID).Msg("Demo client connected")
		case client := <-h.Unregister:
			if current, ok := h.clients[client.SessionID]; ok && current == client {
				delete(h.clients, client.SessionID)
				close(client.Send)
				log.Info().Int("total_clients", len(h.clients)).Str("session_id", client.SessionID).Msg("Demo client disconnected")
			}
		case env := <-h.direct:
			client, ok := h.clients[env.sessionID]
			if !ok {
				continue
			}
			select {
			case client.Send <- env.message:
			default:
				// Slow consumer; drop it rather than block every other session.
				close(client.Send)
				delete(h.clients, env.sessionID)
			}
		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// Stop terminates Run and closes every client's send channel.
func (h *Hub) Stop() {
	close(h.done)
}

// Join registers a client unless the hub has stopped.
func (h *Hub) Join(c *Client) {
	select {
	case h.Register <- c:
	case <-h.done:
	}
}

// Leave unregisters a client unless the hub has stopped.
func (h *Hub) Leave(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// SendTo queues a message for the client with the given session ID.
// Messages for unknown sessions are dropped.
func (h *Hub) SendTo(sessionID string, message []byte) {
	if message == nil {
		return
	}
	select {
	case h.direct <- envelope{sessionID: sessionID, message: message}:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}
