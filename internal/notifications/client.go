package notifications

import (
	"sync"
	"time"

	"socialnet/internal/middleware"
	"socialnet/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Client is one websocket connection registered with a Hub.
type Client struct {
	UserID uint
	// Send carries outbound frames. The hub closes it when the client leaves.
	Send chan []byte

	hub  *Hub
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		UserID: userID,
		Send:   make(chan []byte, sendBufferSize),
		hub:    hub,
		conn:   conn,
	}
}

// Serve runs the connection until the peer leaves or the hub drops it.
// The notification stream is one-way, so inbound frames only keep the
// read deadline alive.
func (c *Client) Serve() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeLoop()
	}()

	c.readLoop()
	c.hub.UnregisterClient(c)
	<-done
}

func (c *Client) readLoop() {
	c.conn.SetReadLimit(maxMessageSize)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, _, err := c.conn.ReadMessage()
		if err == nil {
			continue
		}
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			middleware.Logger.Debug("websocket closed unexpectedly", "user_id", c.UserID, "error", err)
		}
		return
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer c.conn.Close()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				_ = write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues msg without blocking. It reports false when the buffer is
// full or the client has already been closed.
func (c *Client) TrySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		observability.NotificationsDropped.WithLabelValues("closed").Inc()
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		observability.NotificationsDropped.WithLabelValues("full").Inc()
		middleware.Logger.Warn("notification buffer full, dropping", "user_id", c.UserID)
		return false
	}
}

// close shuts the send buffer once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}
