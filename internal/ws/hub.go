package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// MessageType represents the type of a hub payload.
type MessageType string

const (
	MessageRunStarted          MessageType = "RunStarted"
	MessageDepartmentStarted   MessageType = "DepartmentStarted"
	MessageChunkAllocated      MessageType = "ChunkAllocated"
	MessageDepartmentCompleted MessageType = "DepartmentCompleted"
	MessageRunCompleted        MessageType = "RunCompleted"
	MessageRunFailed           MessageType = "RunFailed"
)

// Event is the JSON payload pushed to websocket clients while a run
// progresses.
type Event struct {
	Type       MessageType `json:"type"`
	RunID      string      `json:"run_id"`
	Department string      `json:"department,omitempty"`
	Chunk      int         `json:"chunk,omitempty"`
	Chunks     int         `json:"chunks,omitempty"`
	Programs   int         `json:"programs,omitempty"`
	Source     string      `json:"source,omitempty"`
	Budget     float64     `json:"budget,omitempty"`
	Error      string      `json:"error,omitempty"`
	Summary    any         `json:"summary,omitempty"`
}

// BroadcastMessage packages a payload for a run-scoped broadcast.
type BroadcastMessage struct {
	RunID   string
	Payload []byte
}

// Hub manages active clients and run-scoped broadcasts.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan BroadcastMessage
	done       chan struct{}
	closeOnce  sync.Once
}

// NewHub builds a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan BroadcastMessage),
		done:       make(chan struct{}),
	}
}

// Run starts the hub loop. It returns once Close is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				if !client.Wants(message.RunID) {
					continue
				}
				select {
				case client.Send <- message.Payload:
				default:
					delete(h.clients, client)
					close(client.Send)
				}
			}
		}
	}
}

// Close stops the hub loop and disconnects every client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Broadcast sends a payload to every client watching runID. It is a no-op
// once the hub is closed.
func (h *Hub) Broadcast(runID string, payload []byte) {
	select {
	case h.broadcast <- BroadcastMessage{RunID: runID, Payload: payload}:
	case <-h.done:
	}
}

// Publish encodes event and broadcasts it for its run.
func (h *Hub) Publish(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.Broadcast(event.RunID, payload)
	return nil
}

// Register adds a client to the hub. It reports false when the hub is
// already closed.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Client represents a websocket connection.
type Client struct {
	Conn  *websocket.Conn
	Hub   *Hub
	Send  chan []byte
	mu    sync.RWMutex
	runID string
}

// NewClient returns a client ready for registration.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		Conn: conn,
		Hub:  hub,
		Send: make(chan []byte, 256),
	}
}

// RunID returns the run the client is subscribed to, or "" for all runs.
func (c *Client) RunID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runID
}

// SetRunID narrows delivery to one run. An empty id restores delivery of
// every run.
func (c *Client) SetRunID(runID string) {
	c.mu.Lock()
	c.runID = runID
	c.mu.Unlock()
}

// Wants reports whether a message for runID should be delivered.
func (c *Client) Wants(runID string) bool {
	subscribed := c.RunID()
	return subscribed == "" || subscribed == runID
}
