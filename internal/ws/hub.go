package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ocastro/damas-arena/internal/obslog"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// Envelope is the wire frame exchanged with the browser client.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler receives socket lifecycle and message events. The session
// coordinator implements it.
type Handler interface {
	Connect(connID string)
	Disconnect(connID string)
	Handle(ctx context.Context, connID, event string, data json.RawMessage)
}

// client represents a single WebSocket connection. ctx lives as long as the
// connection, not the upgrade request: net/http cancels the request context
// as soon as HandleWS returns, so handler calls must not inherit it.
type client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// enqueue hands a frame to the write pump. Returns false when the client is
// closed or its buffer is full; holding mu keeps it ordered against close.
func (c *client) enqueue(raw []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- raw:
		return true
	default:
		return false
	}
}

func (c *client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub owns the set of connected sockets and routes frames between them and
// the session handler. It also implements the session broadcaster.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	handler Handler
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// SetHandler wires the event handler before the server starts accepting.
func (h *Hub) SetHandler(handler Handler) { h.handler = handler }

// HandleWS upgrades an HTTP request and runs the connection's pumps.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		obslog.L().Error("ws_upgrade_failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		id:     uuid.NewString(),
		hub:    h,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, sendBufferSize),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()
	obslog.L().Info("ws_connect", zap.String("conn_id", c.id), zap.Int("total", total))

	if h.handler != nil {
		h.handler.Connect(c.id)
	}
	go c.writePump()
	go c.readPump()
}

// Send delivers one event to a single connection. A client whose buffer is
// full loses the frame rather than stalling the hub.
func (h *Hub) Send(connID, event string, data any) {
	raw, err := encode(event, data)
	if err != nil {
		obslog.L().Error("ws_encode_error", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if !c.enqueue(raw) {
		obslog.L().Warn("ws_drop_slow_client", zap.String("conn_id", connID), zap.String("event", event))
	}
}

// SendAll broadcasts one event to every connection.
func (h *Hub) SendAll(event string, data any) {
	raw, err := encode(event, data)
	if err != nil {
		obslog.L().Error("ws_encode_error", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		if !c.enqueue(raw) {
			obslog.L().Warn("ws_drop_slow_client", zap.String("conn_id", id), zap.String("event", event))
		}
	}
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.cancel()
		c.closeSend()
		delete(h.clients, id)
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	total := len(h.clients)
	h.mu.Unlock()
	c.cancel()
	c.closeSend()
	obslog.L().Info("ws_disconnect", zap.String("conn_id", c.id), zap.Int("total", total))
	if h.handler != nil {
		h.handler.Disconnect(c.id)
	}
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

func (c *client) readPump() {
	defer func() {
		c.hub.drop(c)
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				obslog.L().Warn("ws_unexpected_close", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			continue
		}
		if c.hub.handler != nil {
			c.hub.handler.Handle(c.ctx, c.id, env.Event, env.Data)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
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
