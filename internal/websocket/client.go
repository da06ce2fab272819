package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client is one WebSocket connection of an authenticated participant. It
// implements services.Connection.
type Client struct {
	id            string
	participantID uuid.UUID
	conn          *websocket.Conn
	send          chan []byte
	mu            sync.RWMutex
	closed        bool
	connectedAt   time.Time
	lastActivity  atomic.Int64
	logger        *ConnLogger
}

func NewClient(conn *websocket.Conn, participantID uuid.UUID, logger *ConnLogger) *Client {
	now := time.Now()
	c := &Client{
		id:            uuid.NewString(),
		participantID: participantID,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		connectedAt:   now,
		logger:        logger,
	}
	c.lastActivity.Store(now.UnixNano())
	return c
}

func (c *Client) ID() string               { return c.id }
func (c *Client) ParticipantID() uuid.UUID { return c.participantID }

// Send queues payload without blocking. A full buffer drops the frame;
// history replay and unread counters recover what was missed.
func (c *Client) Send(payload []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.logger.Warn("send buffer full", c.participantID, c.id)
		return false
	}
}

// close stops the write pump. Safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump reads frames until the connection fails and hands each one to
// handle. Frames of one connection are handled in arrival order. heartbeat
// runs on every pong.
func (c *Client) readPump(handle func(frame []byte), heartbeat func()) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.lastActivity.Store(time.Now().UnixNano())
		heartbeat()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket unexpected close", c.participantID, c.id, err)
			}
			return
		}
		c.lastActivity.Store(time.Now().UnixNano())
		handle(bytes.TrimSpace(bytes.ReplaceAll(frame, newline, space)))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			if time.Since(time.Unix(0, c.lastActivity.Load())) > pongWait*2 {
				c.logger.Info("client idle timeout", c.participantID, c.id)
				return
			}
		}
	}
}
