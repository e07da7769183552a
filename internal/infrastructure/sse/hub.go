// Package sse fans simulator activity events out to connected
// event-stream clients.
package sse

import (
	"sync"
)

// Event is one activity record streamed to observers.
type Event struct {
	Kind string         `json:"kind"`
	Data map[string]any `json:"data,omitempty"`
}

// Client is one connected event-stream consumer. Messages is buffered;
// a client that cannot keep up drops events rather than blocking the
// hub.
type Client struct {
	ID       string
	Messages chan *Event
}

// NewClient builds a client with the given buffer size.
func NewClient(id string, buffer int) *Client {
	return &Client{ID: id, Messages: make(chan *Event, buffer)}
}

// Hub manages connected event-stream clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		close(c.Messages)
		delete(h.clients, clientID)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers the event to every connected client, skipping
// clients whose buffers are full.
func (h *Hub) Broadcast(event *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.Messages <- event:
		default:
		}
	}
}

// Stop disconnects all clients.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.Messages)
		delete(h.clients, id)
	}
}
