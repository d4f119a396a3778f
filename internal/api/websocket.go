package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openphotometrics/rigbridge/internal/devlink"
	"github.com/openphotometrics/rigbridge/internal/infrastructure/config"
	"github.com/openphotometrics/rigbridge/internal/infrastructure/logging"
)

// wsSendBufferSize is the per-client outbound message buffer size.
// Preview frames arriving faster than the client drains are dropped.
const wsSendBufferSize = 256

// errClientGone indicates the client's send channel is closed.
var errClientGone = errors.New("api: client disconnected")

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// LAN middleware; no origin policy
		return true
	},
}

// Hub tracks connected frontend clients.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*Client]struct{}
	mu      sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*Client]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "client_id", client.id, "clients", h.ClientCount())
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "client_id", client.id, "clients", h.ClientCount())
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close() //nolint:errcheck // Shutdown cleanup
		}
		delete(h.clients, client)
	}
}

// Client is one connected frontend WebSocket client. It doubles as the
// frame sink when the client holds the stream slot.
type Client struct {
	id      string
	hub     *Hub
	gateway *Gateway
	conn    *websocket.Conn
	send    chan []byte
}

// Ensure Client satisfies the gateway's view of a client.
var _ ClientConn = (*Client)(nil)

// ID returns the client's connection id.
func (c *Client) ID() string {
	return c.id
}

// SendFrame forwards one preview frame to the client.
//
// A full send buffer drops the frame (live view carries no backlog); a
// closed channel returns an error so the router detaches this sink.
func (c *Client) SendFrame(frame devlink.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.trySend(data)
}

// SendEnvelope queues one response envelope for the client.
func (c *Client) SendEnvelope(env *Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.hub.logger.Error("failed to marshal envelope", "action", env.Action, "error", err)
		return
	}
	c.trySend(data) //nolint:errcheck // Client is gone; nothing to deliver to
}

// trySend attempts to queue data for the write pump. Full buffers drop
// the message; a closed channel (client disconnected) returns
// errClientGone.
func (c *Client) trySend(data []byte) (err error) {
	defer func() {
		if recover() != nil {
			err = errClientGone
		}
	}()

	select {
	case c.send <- data:
	default:
		// Slow client, skip
	}
	return nil
}

// handleWebSocket upgrades the HTTP connection and starts the client's
// read/write pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		id:      uuid.NewString(),
		hub:     s.hub,
		gateway: s.gateway,
		conn:    conn,
		send:    make(chan []byte, wsSendBufferSize),
	}

	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// readPump reads client requests and dispatches them to the gateway.
func (c *Client) readPump(cfg config.WebSocketConfig) {
	defer func() {
		// Release any slots this client held before dropping it
		c.gateway.ClientGone(c)
		c.hub.Unregister(c)
		c.conn.Close() //nolint:errcheck // Connection teardown
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "client_id", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "client_id", c.id, "error", err)
			}
			return
		}
		// Any client message resets the read deadline
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))

		if env := c.gateway.Handle(context.Background(), c, message); env != nil {
			c.SendEnvelope(env)
		}
	}
}

// writePump writes queued messages to the WebSocket connection.
func (c *Client) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // Connection teardown
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
