package notifications

import (
	"context"
	"errors"
	"sync"

	"socialnet/internal/middleware"

	"github.com/gofiber/websocket/v2"
)

const (
	maxConnsPerUser = 12
	maxTotalConns   = 10000
)

var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrUserFull   = errors.New("user connection limit reached")
	ErrHubClosed  = errors.New("hub is shut down")
)

// Hub tracks the live websocket clients of this instance, grouped by user.
type Hub struct {
	mu      sync.RWMutex
	byUser  map[uint]map[*Client]struct{}
	total   int
	stopped bool
}

func NewHub() *Hub {
	return &Hub{byUser: make(map[uint]map[*Client]struct{})}
}

// Register adds a client for userID. conn may be nil in tests.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.stopped:
		return nil, ErrHubClosed
	case h.total >= maxTotalConns:
		return nil, ErrServerFull
	case len(h.byUser[userID]) >= maxConnsPerUser:
		return nil, ErrUserFull
	}

	set := h.byUser[userID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.byUser[userID] = set
	}
	c := newClient(h, conn, userID)
	set[c] = struct{}{}
	h.total++
	middleware.ActiveWebSockets.Inc()
	return c, nil
}

// UnregisterClient drops c and closes its buffer. Unknown clients are ignored.
func (h *Hub) UnregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.byUser[c.UserID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.byUser, c.UserID)
	}
	h.total--
	middleware.ActiveWebSockets.Dec()
	c.close()
}

// Broadcast queues message on every connection userID has open here.
func (h *Hub) Broadcast(userID uint, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data := []byte(message)
	for c := range h.byUser[userID] {
		c.TrySend(data)
	}
}

func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// StartWiring forwards messages published on per-user channels to the
// matching local connections.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		userID, ok := ParseUserChannel(channel)
		if !ok {
			middleware.Logger.Warn("ignoring notification on unknown channel", "channel", channel)
			return
		}
		h.Broadcast(userID, payload)
	})
}

// Shutdown closes every client and rejects later registrations.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}
	h.stopped = true
	for _, set := range h.byUser {
		for c := range set {
			c.close()
			middleware.ActiveWebSockets.Dec()
		}
	}
	clear(h.byUser)
	h.total = 0
	return nil
}
