package web

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/codefionn/huddle/internal/logger"
	"github.com/codefionn/huddle/internal/protocol"
	"github.com/codefionn/huddle/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Receiver handles the decoded frames of one connection.
type Receiver interface {
	Receive(ctx context.Context, ev protocol.Event)
}

// Client represents a WebSocket client. It implements fabric.Conn: events
// delivered by the fabric are queued and written by WritePump.
type Client struct {
	id             string
	hub            *Hub
	conn           *websocket.Conn
	maxMessageSize int64
	log            *logger.Logger

	mu     sync.RWMutex
	send   chan protocol.Event
	closed bool

	sess     *session.Session
	receiver Receiver
}

// NewClient creates a new WebSocket client with a send queue of queueSize
// events.
func NewClient(hub *Hub, conn *websocket.Conn, queueSize int, maxMessageSize int64) *Client {
	id := uuid.NewString()
	return &Client{
		id:             id,
		hub:            hub,
		conn:           conn,
		maxMessageSize: maxMessageSize,
		log:            logger.Global().WithPrefix("ws:" + id[:8]),
		send:           make(chan protocol.Event, queueSize),
	}
}

// ID implements fabric.Conn.
func (c *Client) ID() string { return c.id }

// Deliver implements fabric.Conn. It never blocks: when the send queue is
// full or the client is closed the event is dropped.
func (c *Client) Deliver(ev protocol.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// attach binds the session and frame receiver served by this client.
func (c *Client) attach(sess *session.Session, r Receiver) {
	c.sess = sess
	c.receiver = r
}

// Close closes the underlying connection, which ends ReadPump.
func (c *Client) Close() {
	_ = c.conn.Close()
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump reads frames until the connection fails and hands each one to
// the receiver. Frames of one client are handled one at a time.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		if c.sess != nil {
			c.sess.Close()
		}
		c.hub.Unregister(c)
		c.closeSend()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("WebSocket read error: %v", err)
			}
			return
		}

		ev, err := protocol.Decode(message)
		if err != nil {
			c.log.Debug("Rejected frame: %v", err)
			c.Deliver(protocol.ErrorEvent("Invalid JSON object",
				protocol.WrapError(protocol.CodeBadRequest, "invalid frame", err)))
			continue
		}
		c.log.Debug("WebSocket received: %s", ev.Type())

		if c.receiver != nil {
			c.receiver.Receive(ctx, ev)
		}
	}
}

// WritePump writes queued events and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				c.log.Error("Failed to marshal %s: %v", ev.Type(), err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("Failed to write message: %v", err)
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
