package transport

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tempo-chess/tempo/pkg/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	sendBuffer = 64
)

// Client is one connected participant. The hub pushes outbound frames into
// send; inbound frames are handed to the server's command dispatcher.
type Client struct {
	ParticipantId string

	conn *websocket.Conn

	// mu guards send against Close: a hub publish that snapshotted this
	// client before it was detached must never hit a closed channel.
	mu     sync.Mutex
	send   chan []byte
	closed bool

	// topics is guarded by the hub mutex.
	topics map[string]struct{}
}

func NewClient(conn *websocket.Conn, participantId string) *Client {
	return &Client{
		ParticipantId: participantId,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		topics:        make(map[string]struct{}),
	}
}

func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		// Gone already; nothing to deliver and nothing to drop.
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Send queues one event for this client only. Used for per-command error
// replies that must not reach the opponent.
func (c *Client) Send(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error("failed to marshal event", zap.Error(err))
		return
	}
	c.enqueue(data)
}

// Close is idempotent and safe against concurrent publishes.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump reads inbound frames and hands them to handle until the
// connection drops. Runs on the connection's goroutine.
func (c *Client) ReadPump(handle func(message []byte)) {
	defer c.conn.Close()

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
				logging.Info("connection closed",
					zap.String("participant_id", c.ParticipantId),
					zap.Error(err),
				)
			}
			return
		}
		handle(message)
	}
}

// WritePump drains the send queue onto the wire with keepalive pings.
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
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
