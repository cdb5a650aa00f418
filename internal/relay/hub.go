package relay

import (
	"sync"
)

// Session is one live client surface able to receive relay events. A user
// may hold many at once (tabs, windows, installed app).
type Session interface {
	ID() string
	UserID() string
	Deliver(ev Event) error
	Close(code int, reason string)
}

// Hub tracks live sessions per user and fans events out to all of them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]Session            // session id -> session
	byUser   map[string]map[string]Session // user id -> session id -> session
}

// NewHub constructs an initialized Hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]Session),
		byUser:   make(map[string]map[string]Session),
	}
}

// Attach registers a session. Unlike a single-socket registry, every session
// of a user stays live; fan-out reaches all of them.
func (h *Hub) Attach(s Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	userSessions := h.byUser[s.UserID()]
	if userSessions == nil {
		userSessions = make(map[string]Session)
		h.byUser[s.UserID()] = userSessions
	}
	userSessions[s.ID()] = s
	h.mu.Unlock()
}

// Detach removes a session if it is still tracked.
func (h *Hub) Detach(s Session) {
	h.mu.Lock()
	h.detachLocked(s.ID())
	h.mu.Unlock()
}

// Broadcast delivers ev to every live session of userID and returns how many
// sessions accepted it. No sessions is not an error.
func (h *Hub) Broadcast(userID string, ev Event) int {
	h.mu.RLock()
	sessions := make([]Session, 0, len(h.byUser[userID]))
	for _, s := range h.byUser[userID] {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range sessions {
		if err := s.Deliver(ev); err == nil {
			delivered++
		}
	}
	return delivered
}

// SessionCount reports how many live sessions a user has.
func (h *Hub) SessionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

// Close terminates all sessions and clears the registry.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[string]Session)
	h.byUser = make(map[string]map[string]Session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close(1001, "hub shutdown")
	}
}

func (h *Hub) detachLocked(sessionID string) {
	s, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	delete(h.sessions, sessionID)
	if userSessions, ok := h.byUser[s.UserID()]; ok {
		delete(userSessions, sessionID)
		if len(userSessions) == 0 {
			delete(h.byUser, s.UserID())
		}
	}
}
