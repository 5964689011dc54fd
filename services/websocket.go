package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CrowderSoup/taskboard/gateway"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024

	sendBuffer = 256
)

// Message types sent over the realtime socket.
const (
	MessageChange = "change"
	MessagePing   = "ping"
	MessagePong   = "pong"
)

// Client is one realtime connection of a signed-in user.
type Client struct {
	Hub   *Hub
	Conn  *websocket.Conn
	Send  chan []byte
	Email string
}

// NewClient wraps conn for the user email.
func NewClient(hub *Hub, conn *websocket.Conn, email string) *Client {
	return &Client{Hub: hub, Conn: conn, Send: make(chan []byte, sendBuffer), Email: email}
}

// WebSocketMessage is the envelope of every realtime message.
type WebSocketMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ReadPump reads until the connection drops. Clients only ever send pings;
// everything else is ignored.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("websocket read failed", "email", c.Email, "error", err)
			}
			return
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.Hub.log.Debug("dropping malformed websocket message", "email", c.Email, "error", err)
			continue
		}
		if msg.Type != MessagePing {
			continue
		}
		pong, err := encodeMessage(MessagePong, map[string]string{"timestamp": time.Now().UTC().Format(time.RFC3339)})
		if err != nil {
			continue
		}
		c.Hub.reply(c, pong)
	}
}

// WritePump pumps messages from the hub to the connection and keeps it alive
// with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// delivery goes to every client of owner, or only to client when set.
type delivery struct {
	owner   string
	client  *Client
	message []byte
}

// Hub fans committed changes out to every connection of the owning user.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	log        *slog.Logger
}

// NewHub creates a hub. Call Run to start it.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan delivery, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues change for every connection of owner.
func (h *Hub) Publish(owner string, change gateway.Change) {
	message, err := encodeMessage(MessageChange, change)
	if err != nil {
		h.log.Error("failed to encode change", "error", err)
		return
	}
	select {
	case h.broadcast <- delivery{owner: owner, message: message}:
	case <-h.done:
	}
}

func (h *Hub) reply(client *Client, message []byte) {
	select {
	case h.broadcast <- delivery{client: client, message: message}:
	case <-h.done:
	}
}

// Run serves the hub until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for client := range h.clients {
			close(client.Send)
			delete(h.clients, client)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = true
			h.log.Info("client connected", "email", client.Email)
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.log.Info("client disconnected", "email", client.Email)
			}
		case d := <-h.broadcast:
			for client := range h.clients {
				if d.client != nil && client != d.client {
					continue
				}
				if d.client == nil && client.Email != d.owner {
					continue
				}
				select {
				case client.Send <- d.message:
				default:
					h.log.Warn("client send buffer full, removing client", "email", client.Email)
					close(client.Send)
					delete(h.clients, client)
				}
			}
		}
	}
}

func encodeMessage(kind string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WebSocketMessage{Type: kind, Data: raw})
}
