package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/devicechat/internal/config"
	"github.com/rickgao/devicechat/internal/connection"
	"github.com/rickgao/devicechat/internal/fanout"
	"github.com/rickgao/devicechat/internal/gateway"
	"github.com/rickgao/devicechat/internal/identity"
	"github.com/rickgao/devicechat/internal/model"
	"github.com/rickgao/devicechat/internal/presence"
	"github.com/rickgao/devicechat/internal/protocol"
	"github.com/rickgao/devicechat/internal/router"
	"github.com/rickgao/devicechat/internal/session"
	"github.com/rickgao/devicechat/internal/store"
	"github.com/rickgao/devicechat/internal/upload"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type stack struct {
	store    *store.Memory
	registry *session.Registry
	hub      *connection.Hub
	deps     Deps
}

func newStack(t *testing.T) *stack {
	t.Helper()

	st := store.NewMemory()
	registry := session.NewRegistry()
	hub := connection.NewHub(context.Background(), connection.DefaultConfig(), nil)
	fan := fanout.New(st, hub, nil)
	tracker := presence.New(st, registry, fan, hub, nil)
	resolver := identity.New(st, registry, tracker, nil)
	messages := router.NewRouter(st, registry, hub, nil)
	gw := gateway.New(gateway.Config{EventTimeout: time.Second}, resolver, tracker, messages, fan, hub, nil)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		hub.Shutdown(ctx)
	})

	return &stack{
		store:    st,
		registry: registry,
		hub:      hub,
		deps: Deps{
			Store:    st,
			Hub:      hub,
			Gateway:  gw,
			Registry: registry,
			Router:   messages,
		},
	}
}

func (s *stack) serve(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(NewEngine(config.ServerConfig{WSPath: "/ws"}, s.deps, nil))
	t.Cleanup(server.Close)
	return server
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, server *httptest.Server) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return &client{t: t, ws: ws}
}

func (c *client) send(event string, data any) {
	c.t.Helper()
	frame, err := protocol.Encode(event, data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.ws.WriteMessage(websocket.TextMessage, frame))
}

// await reads frames until one with event arrives.
func (c *client) await(event string) protocol.Envelope {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		c.ws.SetReadDeadline(deadline)
		_, data, err := c.ws.ReadMessage()
		require.NoError(c.t, err, "waiting for %s", event)
		env, err := protocol.Decode(data)
		require.NoError(c.t, err)
		if env.Event == event {
			return env
		}
	}
}

func TestServer_RelayFlow(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	server := s.serve(t)

	alice := dial(t, server)
	bob := dial(t, server)

	alice.send(protocol.EventRegister, protocol.RegisterRequest{DeviceID: "A", Username: "alice"})
	alice.await(protocol.EventUsers)

	bob.send(protocol.EventRegister, protocol.RegisterRequest{DeviceID: "B", Username: "bob"})
	bob.await(protocol.EventUsers)
	var roster []model.Device
	req.NoError(alice.await(protocol.EventUsers).DecodeInto(&roster))
	req.Len(roster, 2)

	// Direct message reaches bob only
	alice.send(protocol.EventPrivateMessage, protocol.PrivateMessageRequest{Recipient: "B", Message: "hi"})
	pm := bob.await(protocol.EventPrivateMessage)
	req.JSONEq(`{"sender":"A","message":"hi"}`, string(pm.Data))

	// Bob leaving is observed by alice
	bob.ws.Close()
	update := alice.await(protocol.EventUserStatusUpdate)
	req.JSONEq(`{"device_id":"B","status":"offline"}`, string(update.Data))

	d, err := s.store.Get(context.Background(), "B")
	req.NoError(err)
	req.Equal(model.StatusOffline, d.Status)

	// History survives
	alice.send(protocol.EventLoadMessages, protocol.LoadMessagesRequest{Sender: "B", Recipient: "A"})
	var history []model.Message
	req.NoError(alice.await(protocol.EventLoadMessages).DecodeInto(&history))
	req.Len(history, 1)
	req.Equal("hi", history[0].Body)
}

func TestServer_Health(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	s.registry.Register("A", "s1")
	engine := NewEngine(config.ServerConfig{WSPath: "/ws"}, s.deps, nil)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	req.Equal(http.StatusOK, rec.Code)
	var body struct {
		Status     string `json:"status"`
		Components struct {
			Store    string `json:"store"`
			Sessions struct {
				BoundDevices int `json:"bound_devices"`
			} `json:"sessions"`
			Uploads bool `json:"uploads"`
		} `json:"components"`
	}
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	req.Equal("healthy", body.Status)
	req.Equal("connected", body.Components.Store)
	req.Equal(1, body.Components.Sessions.BoundDevices)
	req.False(body.Components.Uploads)
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestServer_Health_StoreDown(t *testing.T) {
	s := newStack(t)
	s.deps.Store = downStore{}
	engine := NewEngine(config.ServerConfig{WSPath: "/ws"}, s.deps, nil)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), `"unhealthy"`)
}

type nopBlobs struct{}

func (nopBlobs) Put(context.Context, string, string, []byte) (string, error) { return "", nil }

func TestServer_UploadRoute(t *testing.T) {
	s := newStack(t)

	engine := NewEngine(config.ServerConfig{WSPath: "/ws"}, s.deps, nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, UploadPath, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	s.deps.Upload = upload.NewHandler(nopBlobs{}, 1<<20, nil)
	engine = NewEngine(config.ServerConfig{WSPath: "/ws"}, s.deps, nil)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, UploadPath, strings.NewReader("")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Addr(t *testing.T) {
	s := newStack(t)
	srv := New(config.ServerConfig{Host: "127.0.0.1", Port: 9090, WSPath: "/ws"}, s.deps, nil)
	require.Equal(t, "127.0.0.1:9090", srv.Addr())
}

func TestNewEngine_NilLogger(t *testing.T) {
	s := newStack(t)
	engine := NewEngine(config.ServerConfig{WSPath: "/ws"}, s.deps, nil)

	for _, target := range []string{"/health", "/missing"} {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code == http.StatusInternalServerError {
			t.Errorf("GET %s = 500, want a handled response", target)
		}
	}
}
