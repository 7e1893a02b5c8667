package connection

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type inbound struct {
	conn  *Conn
	frame []byte
}

// recordingHandler forwards hub callbacks to channels.
type recordingHandler struct {
	frames      chan inbound
	disconnects chan *Conn
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		frames:      make(chan inbound, 16),
		disconnects: make(chan *Conn, 16),
	}
}

func (h *recordingHandler) HandleFrame(_ context.Context, c *Conn, frame []byte) {
	h.frames <- inbound{conn: c, frame: frame}
}

func (h *recordingHandler) HandleDisconnect(_ context.Context, c *Conn) {
	h.disconnects <- c
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.OutboundBuffer = 8
	cfg.WriteTimeout = time.Second
	return cfg
}

func startHub(t *testing.T, cfg Config) (*Hub, *recordingHandler, *httptest.Server) {
	t.Helper()
	hub := NewHub(context.Background(), cfg, slog.Default())
	handler := newRecordingHandler()
	server := httptest.NewServer(hub.Handler(handler))
	t.Cleanup(server.Close)
	return hub, handler, server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// hello sends a frame and returns the server side connection that got it.
func hello(t *testing.T, ws *websocket.Conn, handler *recordingHandler) *Conn {
	t.Helper()
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"hello"}`)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	select {
	case in := <-handler.frames:
		return in.conn
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
		return nil
	}
}

func readText(t *testing.T, ws *websocket.Conn) string {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Fatalf("message type = %d, want text", msgType)
	}
	return string(data)
}

func TestHub_HandleFrame(t *testing.T) {
	hub, handler, server := startHub(t, testConfig())
	ws := dial(t, server)

	// Binary frames are ignored.
	if err := ws.WriteMessage(websocket.BinaryMessage, []byte{0x01}); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"load_users"}`)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	select {
	case in := <-handler.frames:
		if string(in.frame) != `{"event":"load_users"}` {
			t.Errorf("frame = %s, want load_users", in.frame)
		}
		if in.conn.ID() == "" {
			t.Error("expected a session ID")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
	}

	if hub.Len() != 1 {
		t.Errorf("Len() = %d, want 1", hub.Len())
	}
}

func TestHub_Deliver(t *testing.T) {
	hub, handler, server := startHub(t, testConfig())
	ws := dial(t, server)
	c := hello(t, ws, handler)

	if !hub.Deliver(c.ID(), []byte(`{"event":"users"}`)) {
		t.Fatal("Deliver returned false for a live session")
	}
	if got := readText(t, ws); got != `{"event":"users"}` {
		t.Errorf("received %s", got)
	}

	if hub.Deliver("no-such-session", []byte(`{}`)) {
		t.Error("Deliver returned true for an unknown session")
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub, handler, server := startHub(t, testConfig())
	first := dial(t, server)
	second := dial(t, server)
	hello(t, first, handler)
	hello(t, second, handler)

	if n := hub.Broadcast([]byte(`{"event":"users","data":[]}`)); n != 2 {
		t.Fatalf("Broadcast queued %d, want 2", n)
	}

	for _, ws := range []*websocket.Conn{first, second} {
		if got := readText(t, ws); got != `{"event":"users","data":[]}` {
			t.Errorf("received %s", got)
		}
	}
}

func TestHub_Disconnect(t *testing.T) {
	hub, handler, server := startHub(t, testConfig())
	ws := dial(t, server)
	c := hello(t, ws, handler)
	c.SetDeviceID("dev-1")

	ws.Close()

	select {
	case gone := <-handler.disconnects:
		if gone.ID() != c.ID() {
			t.Errorf("disconnect for %s, want %s", gone.ID(), c.ID())
		}
		if gone.DeviceID() != "dev-1" {
			t.Errorf("DeviceID() = %q, want dev-1", gone.DeviceID())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for disconnect")
	}

	if hub.Len() != 0 {
		t.Errorf("Len() = %d, want 0", hub.Len())
	}
	if hub.Deliver(c.ID(), []byte(`{}`)) {
		t.Error("Deliver succeeded after disconnect")
	}
	if stats := hub.Stats(); stats.Accepted != 1 || stats.Connections != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestHub_Shutdown(t *testing.T) {
	hub, handler, server := startHub(t, testConfig())
	ws := dial(t, server)
	hello(t, ws, handler)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := hub.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	select {
	case <-handler.disconnects:
	default:
		t.Error("expected disconnect callback before Shutdown returned")
	}
	if hub.Len() != 0 {
		t.Errorf("Len() = %d, want 0", hub.Len())
	}
}

func TestHub_RejectsAfterShutdown(t *testing.T) {
	hub, handler, server := startHub(t, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := hub.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	ws, resp, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	if err == nil {
		ws.Close()
		t.Fatal("Dial succeeded after Shutdown")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("response = %v, want 503", resp)
	}

	select {
	case <-handler.frames:
		t.Error("unexpected frame after Shutdown")
	default:
	}
	if hub.Len() != 0 {
		t.Errorf("Len() = %d, want 0", hub.Len())
	}
}

func TestHub_AddAfterShutdownCloses(t *testing.T) {
	hub := NewHub(context.Background(), testConfig(), slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := hub.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	c := newConn("late", nil, testConfig(), slog.Default())
	hub.add(c)

	select {
	case <-c.Done():
	default:
		t.Error("connection added during shutdown must be closed")
	}
}

func TestConn_Enqueue_Drop(t *testing.T) {
	cfg := testConfig()
	cfg.OutboundBuffer = 1
	cfg.OverflowPolicy = OverflowDrop
	c := newConn("s1", nil, cfg, slog.Default())

	if err := c.Enqueue([]byte("a")); err != nil {
		t.Fatalf("first Enqueue failed: %v", err)
	}
	if err := c.Enqueue([]byte("b")); err != ErrQueueFull {
		t.Errorf("second Enqueue = %v, want ErrQueueFull", err)
	}
	if c.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", c.Dropped())
	}

	select {
	case <-c.Done():
		t.Error("drop policy must keep the connection open")
	default:
	}
}

func TestConn_Enqueue_Disconnect(t *testing.T) {
	cfg := testConfig()
	cfg.OutboundBuffer = 1
	cfg.OverflowPolicy = OverflowDisconnect
	c := newConn("s1", nil, cfg, slog.Default())

	if err := c.Enqueue([]byte("a")); err != nil {
		t.Fatalf("first Enqueue failed: %v", err)
	}
	if err := c.Enqueue([]byte("b")); err != ErrQueueFull {
		t.Errorf("second Enqueue = %v, want ErrQueueFull", err)
	}

	select {
	case <-c.Done():
	default:
		t.Fatal("disconnect policy must close the connection")
	}

	if err := c.Enqueue([]byte("c")); err != ErrClosed {
		t.Errorf("Enqueue after close = %v, want ErrClosed", err)
	}
}

func TestConn_DoubleClose(t *testing.T) {
	c := newConn("s1", nil, testConfig(), slog.Default())
	c.Close()
	c.Close()

	select {
	case <-c.Done():
	default:
		t.Error("expected Done to be closed")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.OutboundBuffer != 256 {
		t.Errorf("OutboundBuffer = %d, want 256", cfg.OutboundBuffer)
	}
	if cfg.OverflowPolicy != OverflowDrop {
		t.Errorf("OverflowPolicy = %q, want drop", cfg.OverflowPolicy)
	}
	if cfg.PingInterval >= cfg.PongTimeout {
		t.Error("PingInterval must be shorter than PongTimeout")
	}
}
