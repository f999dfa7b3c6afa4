package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/pkg/logging"
	"github.com/pulsewatch/pulsewatch/pkg/types"
	"github.com/pulsewatch/pulsewatch/server/internal/live"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// CORS is allow-all on the REST API; the live channel matches it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients for every ingested sample.
type Message struct {
	Event string      `json:"event"`
	Data  types.Event `json:"data"`
}

// Hub bridges live publisher subscriptions to WebSocket clients.
type Hub struct {
	pub *live.Publisher
	log *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client is one connected WebSocket client and its live subscription.
type client struct {
	conn *websocket.Conn
	sub  *live.Subscription
	log  *zap.Logger
}

// New creates a Hub that subscribes each client to pub.
func New(pub *live.Publisher, log *zap.Logger) *Hub {
	return &Hub{
		pub:     pub,
		log:     logging.OrNop(log),
		clients: make(map[*client]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ServeHTTP upgrades the HTTP connection to WebSocket and streams live events
// to it until either side goes away. Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		sub:  h.pub.Subscribe(),
		log:  h.log,
	}
	h.register(c)
	defer h.unregister(c)

	h.log.Info("ws: client connected",
		zap.String("subscription", c.sub.ID()),
		zap.String("remote", r.RemoteAddr),
	)

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// unregister drops the subscription, which in turn stops writePump.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.pub.Unsubscribe(c.sub)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		h.pub.Unsubscribe(c.sub)
	}
}

// writePump forwards subscription events to the WebSocket connection and
// sends periodic pings. A closed subscription ends the connection with a
// close frame. Runs in its own goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.sub.C():
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				if c.sub.Dropped() {
					c.log.Warn("ws: slow client disconnected", zap.String("subscription", c.sub.ID()))
				}
				c.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			msg, err := json.Marshal(Message{Event: types.EventHealthDataUpdate, Data: ev})
			if err != nil {
				c.log.Error("ws: encode event", zap.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection to process control messages (pong,
// close) and detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
