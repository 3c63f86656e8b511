package web

import (
	"sync"

	"github.com/codefionn/huddle/internal/logger"
)

// Hub keeps track of the live WebSocket clients so they can be closed on
// shutdown. Group fan-out is done by the fabric, not the hub.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	quit       chan struct{}
	stopOnce   sync.Once
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
}

// Run starts the hub
func (h *Hub) Run() {
	logger.Info("WebSocket hub started")
	defer logger.Info("WebSocket hub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Debug("Client registered: %s", client.ID())

		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client)
			h.mu.Unlock()
			logger.Debug("Client unregistered: %s", client.ID())

		case <-h.quit:
			h.mu.Lock()
			clients := h.clients
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			for client := range clients {
				client.Close()
			}
			return
		}
	}
}

// Stop stops the hub and closes every registered client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// Register registers a new client. It reports false once the hub stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.quit:
		return false
	}
}

// Unregister unregisters a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
