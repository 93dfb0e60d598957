// Package realtime pushes events to the websocket connections of signed-in users.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/notification"
)

// Event is the envelope written to the sockets.
type Event struct {
	Event string      `json:"event"`
	Seq   int64       `json:"seq"`
	Data  interface{} `json:"data,omitempty"`
}

// Hub tracks the connections of each user. A user may hold several connections (tabs, devices).
type Hub struct {
	clients map[string]map[*client]bool
	mu      sync.RWMutex

	register   chan *client
	unregister chan *client
	stopped    chan struct{} // closed when Run returns
	seq        int64
	logger     core.Logger
}

var _ notification.Publisher = (*Hub)(nil)

func NewHub(logger core.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		stopped:    make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)
	for {
		select {
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case <-ctx.Done():
			h.shutdown()
			return nil
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*client]bool)
	}
	h.clients[c.userID][c] = true
	h.logger.Debug("ws client connected", map[string]interface{}{"user_id": c.userID, "connections": len(h.clients[c.userID])})
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[c.userID]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.clients, c.userID)
	}
	h.logger.Debug("ws client disconnected", map[string]interface{}{"user_id": c.userID, "connections": len(clients)})
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for c := range clients {
			close(c.send)
		}
	}
	h.clients = make(map[string]map[*client]bool)
}

// Publish sends an event to every connection of a user. Slow connections are dropped.
func (h *Hub) Publish(userID, event string, payload interface{}) {
	data, err := json.Marshal(Event{Event: event, Seq: atomic.AddInt64(&h.seq, 1), Data: payload})
	if err != nil {
		h.logger.Error("encoding realtime event", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[userID] {
		select {
		case c.send <- data:
		default:
			go h.drop(c)
		}
	}
}

// drop unregisters a client unless its read pump is already leaving.
func (h *Hub) drop(c *client) {
	select {
	case h.unregister <- c:
	case <-c.done:
	case <-h.stopped:
	}
}

func (h *Hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Connections returns the number of open connections of a user.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
