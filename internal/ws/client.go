package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/quocanhngo/tripzi/internal/model"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 16 << 10

	sendBuffer = 256
)

// Client is one WebSocket connection of a user
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	UserID string
	Name   string

	mu      sync.Mutex
	send    chan []byte
	closed  bool
	onClose []func()
}

// NewClient creates a client for conn. conn may be nil in tests that only
// consume the send queue.
func NewClient(hub *Hub, conn *websocket.Conn, userID, name string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		UserID: userID,
		Name:   name,
	}
}

// MessageHandler is a callback for processing incoming WebSocket messages
type MessageHandler func(client *Client, event model.WSEvent)

// Emit queues an event for this connection only. It never blocks; the
// event is dropped when the connection is closed or its buffer is full.
func (c *Client) Emit(event *model.WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).WithField("type", event.Type).Error("❌ Failed to marshal event")
		return
	}
	if !c.enqueue(data) {
		log.WithFields(log.Fields{"user_id": c.UserID, "type": event.Type}).Warn("⚠️ Event dropped")
	}
}

// OnClose registers fn to run once the connection is gone, before the
// client is unregistered from the hub
func (c *Client) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// Send returns the outgoing queue
func (c *Client) Send() <-chan []byte {
	return c.send
}

func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the send queue once; WritePump then closes the socket
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) runCloseHooks() {
	c.mu.Lock()
	hooks := c.onClose
	c.onClose = nil
	c.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

// ReadPump reads events from the connection and hands them to handler.
// Runs in a per-client goroutine.
func (c *Client) ReadPump(handler MessageHandler) {
	defer func() {
		c.runCloseHooks()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).WithField("user_id", c.UserID).Warn("⚠️ WebSocket closed unexpectedly")
			}
			break
		}

		var event model.WSEvent
		if err := json.Unmarshal(message, &event); err != nil {
			log.WithError(err).WithField("user_id", c.UserID).Warn("⚠️ Malformed WebSocket message")
			continue
		}
		if handler != nil {
			handler(c, event)
		}
	}
}

// WritePump writes queued events and keepalive pings to the connection.
// Runs in a per-client goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One event per frame so clients can parse each frame as JSON
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
