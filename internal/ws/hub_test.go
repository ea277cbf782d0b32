package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type handled struct {
	connID string
	event  string
	ctx    context.Context
	ctxErr error
}

type recordingHandler struct {
	mu           sync.Mutex
	disconnected []string
	events       chan handled
}

func (h *recordingHandler) Connect(connID string) {}

func (h *recordingHandler) Disconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = append(h.disconnected, connID)
}

func (h *recordingHandler) Handle(ctx context.Context, connID, event string, data json.RawMessage) {
	h.events <- handled{connID: connID, event: event, ctx: ctx, ctxErr: ctx.Err()}
}

func dialTestHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Events arriving long after the upgrade handler returned must still carry
// a live context; the request context dies with ServeHTTP, so the handler
// gets the connection's own.
func TestHandleContextOutlivesUpgradeRequest(t *testing.T) {
	hub := NewHub()
	h := &recordingHandler{events: make(chan handled, 4)}
	hub.SetHandler(h)
	conn := dialTestHub(t, hub)

	time.Sleep(200 * time.Millisecond)
	env := Envelope{Event: "make_move", Data: json.RawMessage(`{"gameId":"gm-1","from":21,"to":17}`)}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write: %v", err)
	}

	var got handled
	select {
	case got = <-h.events:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler was not invoked")
	}
	if got.event != "make_move" {
		t.Fatalf("event = %q", got.event)
	}
	if got.ctxErr != nil {
		t.Fatalf("handler context already done: %v", got.ctxErr)
	}

	// the context ends with the connection, and the handler learns of the drop
	_ = conn.Close()
	select {
	case <-got.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("context not cancelled after close")
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.Lock()
		n := len(h.disconnected)
		h.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("disconnect callback not delivered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSendDuringShutdownDoesNotPanic(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		id:     "c1",
		hub:    hub,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, 1),
	}
	hub.clients[c.id] = c

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			hub.Send("c1", "game_state", map[string]int{"i": i})
		}
	}()
	hub.Shutdown()
	wg.Wait()

	// post-shutdown sends are silent no-ops
	hub.Send("c1", "game_state", nil)
	hub.SendAll("game_state", nil)
	select {
	case <-c.ctx.Done():
	default:
		t.Fatalf("shutdown must cancel the client context")
	}
}
