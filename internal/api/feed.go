package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ─── Live Feed ──────────────────────────────────────────────────────────────
// The feed pushes marketplace events (registrations, posts, trades) to any
// connected websocket client. Delivery is best-effort: slow clients are
// dropped rather than allowed to stall the hub.

const (
	feedWriteWait  = 10 * time.Second
	feedPingPeriod = 30 * time.Second
	feedSendBuffer = 64
)

// FeedEvent is one marketplace event on the wire.
type FeedEvent struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// FeedHub fans marketplace events out to websocket subscribers.
type FeedHub struct {
	upgrader websocket.Upgrader

	register   chan *feedClient
	unregister chan *feedClient
	events     chan FeedEvent
	done       chan struct{}
}

type feedClient struct {
	conn *websocket.Conn
	send chan FeedEvent
}

// NewFeedHub creates a feed hub. Run must be called before use.
func NewFeedHub() *FeedHub {
	return &FeedHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Agents connect from anywhere; the feed is public read-only.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		events:     make(chan FeedEvent, feedSendBuffer),
		done:       make(chan struct{}),
	}
}

// Run pumps events to subscribers until Stop is called.
func (h *FeedHub) Run() {
	clients := make(map[*feedClient]struct{})
	for {
		select {
		case c := <-h.register:
			clients[c] = struct{}{}
		case c := <-h.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
			}
		case ev := <-h.events:
			for c := range clients {
				select {
				case c.send <- ev:
				default:
					// Client cannot keep up; cut it loose.
					delete(clients, c)
					close(c.send)
				}
			}
		case <-h.done:
			for c := range clients {
				close(c.send)
			}
			return
		}
	}
}

// Stop shuts the hub down and disconnects all subscribers.
func (h *FeedHub) Stop() { close(h.done) }

// Broadcast queues an event for all subscribers. Never blocks; events are
// dropped when the hub is saturated.
func (h *FeedHub) Broadcast(eventType string, data interface{}) {
	ev := FeedEvent{
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
	select {
	case h.events <- ev:
	default:
		slog.Warn("feed_event_dropped", "type", eventType)
	}
}

// HandleWS upgrades the connection and streams the live feed.
func (h *FeedHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("feed_upgrade_failed", "error", err)
		return
	}

	client := &feedClient{conn: conn, send: make(chan FeedEvent, feedSendBuffer)}
	h.register <- client

	go client.writePump()
	client.readPump(h)
}

// readPump drains client frames until disconnect. The feed is one-way, so
// inbound payloads are discarded.
func (c *feedClient) readPump(h *FeedHub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pushes events and pings until the send channel closes.
func (c *feedClient) writePump() {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// broadcast is the nil-safe server-side hook handlers call.
func (s *Server) broadcast(eventType string, data interface{}) {
	if s.feed != nil {
		s.feed.Broadcast(eventType, data)
	}
}
