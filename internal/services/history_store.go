package services

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/isdelr/neuroscan-be/internal/models"
)

// session is one user's conversation. mu serialises whole turns so the
// user/assistant pair of one request is never interleaved with another's.
type session struct {
	mu         sync.Mutex
	messages   []models.Message
	lastActive time.Time
}

// HistoryStore keeps per-user conversation history in process memory.
// Sessions live until evicted; nothing is persisted across restarts.
type HistoryStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	seed     models.Message
	now      func() time.Time
}

// NewHistoryStore creates a store whose sessions start with the given system message.
func NewHistoryStore(seed models.Message) *HistoryStore {
	return &HistoryStore{
		sessions: make(map[string]*session),
		seed:     seed,
		now:      time.Now,
	}
}

// UserKey normalises a client-supplied user identifier so that "7", " 7" and 7
// address the same conversation. Non-numeric identifiers are used verbatim.
func UserKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return raw
}

func (h *HistoryStore) acquire(key string) *session {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[key]
	if !ok {
		s = &session{messages: []models.Message{h.seed}}
		h.sessions[key] = s
	}
	s.lastActive = h.now()
	return s
}

// Turn appends a user message, calls fn with the full history and appends its
// reply. If fn fails the user message is removed again. It returns a copy of
// the history after the turn.
func (h *HistoryStore) Turn(key, userContent string, fn func([]models.Message) (string, error)) ([]models.Message, error) {
	s := h.acquire(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, models.Message{Role: models.RoleUser, Content: userContent})
	reply, err := fn(cloneMessages(s.messages))
	if err != nil {
		s.messages = s.messages[:len(s.messages)-1]
		return nil, err
	}
	s.messages = append(s.messages, models.Message{Role: models.RoleAssistant, Content: reply})

	h.mu.Lock()
	s.lastActive = h.now()
	h.mu.Unlock()

	return cloneMessages(s.messages), nil
}

// History returns a copy of a user's conversation, or nil if there is none.
func (h *HistoryStore) History(key string) []models.Message {
	h.mu.Lock()
	s, ok := h.sessions[key]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.messages)
}

// Len reports the number of live sessions.
func (h *HistoryStore) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// EvictIdle drops sessions not touched for longer than ttl and returns how many were removed.
func (h *HistoryStore) EvictIdle(ttl time.Duration) int {
	cutoff := h.now().Add(-ttl)
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for key, s := range h.sessions {
		if s.lastActive.Before(cutoff) {
			delete(h.sessions, key)
			removed++
		}
	}
	return removed
}

func cloneMessages(in []models.Message) []models.Message {
	out := make([]models.Message, len(in))
	copy(out, in)
	return out
}
