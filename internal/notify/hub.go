package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ridedispatch/internal/logger"
)

const (
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one WebSocket connection subscribed to a fixed set of channels.
type Client struct {
	ID       string
	channels []string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
}

// Hub pushes events to WebSocket subscribers grouped by channel.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	log      logger.Logger
}

// NewHub creates an empty Hub.
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		channels: make(map[string]map[*Client]struct{}),
		log:      log.Action("ws_hub"),
	}
}

// ServeWS upgrades the request and subscribes the connection to channels.
// It returns once the pumps are started.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, channels []string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:       uuid.NewString(),
		channels: channels,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		hub:      h,
	}
	h.register(client)

	go client.writePump()
	go client.readPump()
	return nil
}

// Publish implements Publisher. Slow clients whose buffer is full miss the event.
func (h *Hub) Publish(_ context.Context, channel string, ev Event) error {
	msg, err := json.Marshal(Envelope{Channel: channel, Event: ev})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.channels[channel] {
		select {
		case client.send <- msg:
		default:
			h.log.Warn("dropping event for slow client", "client_id", client.ID, "channel", channel)
		}
	}
	return nil
}

// Subscribers returns the number of connections listening on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range c.channels {
		subs, ok := h.channels[ch]
		if !ok {
			subs = make(map[*Client]struct{})
			h.channels[ch] = subs
		}
		subs[c] = struct{}{}
	}
	h.log.Debug("client registered", "client_id", c.ID, "channels", c.channels)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	registered := false
	for _, ch := range c.channels {
		subs := h.channels[ch]
		if _, ok := subs[c]; ok {
			registered = true
			delete(subs, c)
		}
		if len(subs) == 0 {
			delete(h.channels, ch)
		}
	}
	if registered {
		close(c.send)
		h.log.Debug("client unregistered", "client_id", c.ID)
	}
}

// readPump drains inbound frames so control messages are processed, and
// unregisters the client when the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("websocket read error", "client_id", c.ID, "error", err.Error())
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
