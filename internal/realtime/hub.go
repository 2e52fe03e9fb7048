package realtime

import (
	"log"
	"sync"
)

// Hub is the connection directory for realtime fan-out. Connections start
// anonymous; a join event moves them into the per-user index so targeted
// events reach them. Delivery is at-most-once and best-effort: a recipient
// with no live connection simply misses the push (the durable notification
// record is the recovery path), and a connection whose send buffer is full
// drops the frame.
//
// One Hub instance exists per server. It is handed to the task service as a
// collaborator, never reached through a global.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	users   map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		users:   make(map[string]map[*Client]bool),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	h.detachUserLocked(c)
	close(c.send)
}

// identify binds a connection to a user identity. Idempotent; a join with a
// different identity moves the connection (last join wins).
func (h *Hub) identify(c *Client, userID string) {
	if userID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}
	if c.userID == userID {
		return
	}

	h.detachUserLocked(c)
	c.userID = userID
	if h.users[userID] == nil {
		h.users[userID] = make(map[*Client]bool)
	}
	h.users[userID][c] = true
}

func (h *Hub) detachUserLocked(c *Client) {
	if c.userID == "" {
		return
	}
	if set := h.users[c.userID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.userID)
		}
	}
	c.userID = ""
}

// Broadcast delivers an event to every connection, identified or not.
func (h *Hub) Broadcast(event string, data interface{}) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		log.Printf("⚠️  Failed to encode %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		c.trySend(frame)
	}
}

// SendToUser delivers an event to every connection identified as userID. A
// user with no connections misses the event.
func (h *Hub) SendToUser(userID, event string, data interface{}) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		log.Printf("⚠️  Failed to encode %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.users[userID] {
		c.trySend(frame)
	}
}

// ConnectionCounts reports total and identified connections, for the
// readiness/health surface.
func (h *Hub) ConnectionCounts() (total, identified int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total = len(h.clients)
	for _, set := range h.users {
		identified += len(set)
	}
	return total, identified
}
