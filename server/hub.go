package server

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"theblob/pkg/domain"
	"theblob/pkg/feed"
)

// BlobSource provides the latest public blobs for live update requests
type BlobSource interface {
	GetLatestPublicBlobs(ctx context.Context, limit int) ([]domain.Blob, error)
}

// Hub manages live feed connections. Each client gets a status event on
// connect, can ask for the latest blobs with request_update, and receives
// new_blobs broadcasts when entries are published.
type Hub struct {
	source      BlobSource
	latestLimit int
	upgrader    websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// client wraps a websocket connection with a write lock, the read loop and
// broadcasts write concurrently
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// NewHub creates a hub serving latest blobs from the given source
func NewHub(source BlobSource, latestLimit int) *Hub {
	if latestLimit <= 0 {
		latestLimit = 5
	}
	return &Hub{
		source:      source,
		latestLimit: latestLimit,
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:     map[*client]struct{}{},
	}
}

// ServeWS upgrades the request and runs the client read loop until the
// connection drops
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WARN] websocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn}
	h.register(c)
	defer h.unregister(c)

	log.Printf("[INFO] feed client connected from %s", r.RemoteAddr)
	if err := c.writeJSON(feed.Event{Event: feed.EventStatus}); err != nil {
		log.Printf("[WARN] status write failed: %v", err)
		return
	}

	for {
		var ev feed.Event
		if err := conn.ReadJSON(&ev); err != nil {
			log.Printf("[DEBUG] feed client disconnected: %v", err)
			return
		}

		if ev.Event != feed.EventRequestUpdate {
			continue
		}

		blobs, err := h.source.GetLatestPublicBlobs(r.Context(), h.latestLimit)
		if err != nil {
			log.Printf("[WARN] can't load latest blobs: %v", err)
			continue
		}
		if err := c.writeJSON(feed.Event{Event: feed.EventNewBlobs, Blobs: sanitizeBlobs(blobs)}); err != nil {
			log.Printf("[DEBUG] update write failed: %v", err)
			return
		}
	}
}

// Publish broadcasts freshly published blobs to all connected clients.
// Empty batches are suppressed.
func (h *Hub) Publish(blobs []domain.Blob) {
	if len(blobs) == 0 {
		return
	}

	ev := feed.Event{Event: feed.EventNewBlobs, Blobs: sanitizeBlobs(blobs)}

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.writeJSON(ev); err != nil {
			log.Printf("[DEBUG] broadcast write failed: %v", err)
		}
	}
}

// ClientCount reports the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.conn.Close()
}
