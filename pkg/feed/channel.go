package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/gorilla/websocket"

	"theblob/pkg/domain"
)

// channel event names, shared with the server hub
const (
	EventStatus        = "status"
	EventRequestUpdate = "request_update"
	EventNewBlobs      = "new_blobs"
)

// Event is a message exchanged over the live channel
type Event struct {
	Event string        `json:"event"`
	Blobs []domain.Blob `json:"blobs,omitempty"`
}

// Conn is the subset of the websocket connection the channel uses
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

// Channel is the client side of the live feed connection. Once running it
// asks the server for updates on a fixed interval, which doubles as a
// keep-alive, and prepends any pushed blobs to the feed state.
type Channel struct {
	conn     Conn
	state    *State
	interval time.Duration
}

// NewChannel creates a live channel over an established connection.
// Zero interval falls back to 30 seconds.
func NewChannel(conn Conn, state *State, interval time.Duration) *Channel {
	if interval == 0 {
		interval = 30 * time.Second
	}
	return &Channel{conn: conn, state: state, interval: interval}
}

// Connect dials the server's live endpoint and returns a ready channel
func Connect(ctx context.Context, url string, state *State, interval time.Duration) (*Channel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial live channel: %w", err)
	}
	return NewChannel(conn, state, interval), nil
}

// Run starts the update-request ticker and processes incoming events until
// the context is canceled or the connection fails. The ticker and the
// connection are torn down on return.
func (c *Channel) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ReadJSON has no context support, closing the connection is the only
	// way to unblock the read loop on shutdown
	go func() {
		<-ctx.Done()
		_ = c.conn.Close()
	}()

	go c.updateRequestLoop(ctx)

	for {
		var ev Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read live channel: %w", err)
		}

		switch ev.Event {
		case EventStatus:
			lgr.Printf("[DEBUG] live channel connected")
		case EventNewBlobs:
			if len(ev.Blobs) == 0 {
				continue // empty update is valid, nothing to render
			}
			added := c.state.Prepend(ev.Blobs)
			lgr.Printf("[DEBUG] live channel pushed %d blobs, %d new", len(ev.Blobs), added)
		default:
			lgr.Printf("[WARN] live channel got unknown event %q", ev.Event)
		}
	}
}

// updateRequestLoop periodically asks the server for new blobs. It acts as
// both keep-alive and poll fallback when push delivery lags.
func (c *Channel) updateRequestLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteJSON(Event{Event: EventRequestUpdate}); err != nil {
				lgr.Printf("[WARN] failed to request update: %v", err)
				return
			}
		}
	}
}
