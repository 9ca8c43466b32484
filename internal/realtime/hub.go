// Package realtime pushes event bus topics to connected clients over a
// websocket, so they can refetch without waiting for the next poll.
package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/govindrajpootecosoul/project-tracker/internal/eventbus"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

// IdentifyFunc returns the authenticated user id of an upgrade request.
type IdentifyFunc func(r *http.Request) (userID string, ok bool)

type Hub struct {
	upgrader    websocket.Upgrader
	identify    IdentifyFunc
	logger      zerolog.Logger
	unsubscribe func()

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan eventbus.Event
	once   sync.Once
}

func NewHub(bus eventbus.Bus, identify IdentifyFunc, checkOrigin func(r *http.Request) bool, logger zerolog.Logger) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		identify: identify,
		logger:   logger.With().Str("component", "realtime_hub").Logger(),
		clients:  make(map[*client]struct{}),
	}
	h.unsubscribe = bus.SubscribeAll(h.broadcast)
	return h
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identify(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	c := &client{userID: userID, conn: conn, send: make(chan eventbus.Event, sendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug().Str("user_id", userID).Msg("websocket client connected")

	go h.writePump(c)
	h.readPump(c)
}

// Connections reports how many clients are attached.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(evt eventbus.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !evt.Addressed(c.userID) {
			continue
		}
		select {
		case c.send <- evt:
		default:
			h.logger.Warn().Str("user_id", c.userID).Str("topic", string(evt.Topic)).Msg("websocket client too slow, dropping")
			go h.drop(c)
		}
	}
}

// readPump only watches for close frames and pongs; clients never send data.
func (h *Hub) readPump(c *client) {
	defer h.drop(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("user_id", c.userID).Msg("websocket read failed")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.drop(c)
		c.conn.Close()
	}()
	for {
		select {
		case evt, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(evt); err != nil {
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

func (h *Hub) drop(c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.send)
		h.logger.Debug().Str("user_id", c.userID).Msg("websocket client disconnected")
	})
}

// Close detaches the hub from the bus and disconnects every client.
func (h *Hub) Close() {
	h.unsubscribe()
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.drop(c)
	}
}
