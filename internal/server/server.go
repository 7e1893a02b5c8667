// Package server exposes the relay over HTTP: the WebSocket endpoint, the
// profile image upload endpoint and a health check.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/devicechat/internal/config"
	"github.com/rickgao/devicechat/internal/connection"
	"github.com/rickgao/devicechat/internal/gateway"
	"github.com/rickgao/devicechat/internal/router"
	"github.com/rickgao/devicechat/internal/session"
	"github.com/rickgao/devicechat/internal/upload"
	"github.com/rickgao/devicechat/internal/version"
)

// UploadPath is the profile image upload route.
const UploadPath = "/upload_profile_image"

// Pinger checks a backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components the HTTP surface is built on.
type Deps struct {
	Store    Pinger
	Hub      *connection.Hub
	Gateway  *gateway.Gateway
	Registry *session.Registry
	Router   *router.Router
	Upload   *upload.Handler // nil disables uploads
}

// Server is the relay's HTTP server.
type Server struct {
	cfg    config.ServerConfig
	logger *slog.Logger
	http   *http.Server
}

// New creates a Server.
func New(cfg config.ServerConfig, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           NewEngine(cfg, deps, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// NewEngine builds the route table.
func NewEngine(cfg config.ServerConfig, deps Deps, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	engine.GET(cfg.WSPath, gin.WrapH(deps.Hub.Handler(deps.Gateway)))
	engine.GET("/health", healthHandler(deps))

	if deps.Upload != nil {
		engine.POST(UploadPath, deps.Upload.Upload)
	}

	return engine
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.http.Addr }

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting http server", "addr", s.http.Addr, "ws_path", s.cfg.WSPath)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
// Hijacked WebSocket connections are not tracked here.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("stopping http server")
	return s.http.Shutdown(ctx)
}

// requestLogger logs every non-upgrade request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Writer.Status() == http.StatusSwitchingProtocols {
			return
		}
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
			"remote", c.ClientIP(),
		)
	}
}

// healthHandler reports store reachability and live counts.
func healthHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Build      version.Info   `json:"build"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Build:      version.Get(),
			Components: make(map[string]any),
		}

		// Check store
		if err := deps.Store.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["store"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["store"] = "connected"
		}

		hub := deps.Hub.Stats()
		health.Components["connections"] = map[string]any{
			"live":     hub.Connections,
			"accepted": hub.Accepted,
			"dropped":  hub.Dropped,
		}
		health.Components["sessions"] = map[string]any{
			"bound_devices": deps.Registry.Len(),
		}

		if deps.Router != nil {
			rs := deps.Router.Stats()
			health.Components["messages"] = map[string]any{
				"sent":           rs.MessagesSent,
				"delivered":      rs.MessagesDelivered,
				"persist_errors": rs.PersistErrors,
			}
		}
		if deps.Gateway != nil {
			gs := deps.Gateway.Stats()
			health.Components["events"] = map[string]any{
				"handled": gs.EventsHandled,
				"failed":  gs.EventsFailed,
				"unknown": gs.UnknownEvents,
			}
		}
		health.Components["uploads"] = deps.Upload != nil

		code := http.StatusOK
		if health.Status == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, health)
	}
}
