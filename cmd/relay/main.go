package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/devicechat/internal/config"
	"github.com/rickgao/devicechat/internal/connection"
	"github.com/rickgao/devicechat/internal/database"
	"github.com/rickgao/devicechat/internal/fanout"
	"github.com/rickgao/devicechat/internal/gateway"
	"github.com/rickgao/devicechat/internal/identity"
	"github.com/rickgao/devicechat/internal/presence"
	"github.com/rickgao/devicechat/internal/router"
	"github.com/rickgao/devicechat/internal/server"
	"github.com/rickgao/devicechat/internal/session"
	"github.com/rickgao/devicechat/internal/store"
	"github.com/rickgao/devicechat/internal/store/postgres"
	"github.com/rickgao/devicechat/internal/upload"
	"github.com/rickgao/devicechat/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/relay.local.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("relay failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load configuration
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging
	logger := newLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Get().String(),
		"config", configPath,
		"instance_id", cfg.Instance.ID,
	)

	// Cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// Transport
	hub := connection.NewHub(context.Background(), connection.Config{
		OutboundBuffer:  cfg.Server.OutboundBuffer,
		OverflowPolicy:  connection.OverflowPolicy(cfg.Server.OverflowPolicy),
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
		PingInterval:    cfg.Server.PingInterval,
		PongTimeout:     cfg.Server.PongTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
	}, logger)

	// Core components
	registry := session.NewRegistry()
	fan := fanout.New(st, hub, logger)
	tracker := presence.New(st, registry, fan, hub, logger)
	resolver := identity.New(st, registry, tracker, logger)
	messages := router.NewRouter(st, registry, hub, logger)
	gw := gateway.New(gateway.Config{EventTimeout: cfg.Store.Timeout}, resolver, tracker, messages, fan, hub, logger)

	deps := server.Deps{
		Store:    st,
		Hub:      hub,
		Gateway:  gw,
		Registry: registry,
		Router:   messages,
	}

	// Profile image uploads
	if cfg.Blob.Bucket != "" {
		blobs, err := upload.NewS3(ctx, cfg.Blob, logger)
		if err != nil {
			return fmt.Errorf("configure blob store: %w", err)
		}
		deps.Upload = upload.NewHandler(blobs, cfg.Blob.MaxUploadBytes, logger)
	} else {
		logger.Warn("blob.bucket not set, profile image uploads disabled")
	}

	srv := server.New(cfg.Server, deps, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting first, then close live sockets so disconnects are recorded.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown incomplete", "error", err)
		}
		return hub.Shutdown(shutdownCtx)
	})

	logger.Info("relay running",
		"addr", srv.Addr(),
		"ws_path", cfg.Server.WSPath,
		"store", cfg.Store.Driver,
		"uploads", deps.Upload != nil,
	)

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("relay stopped")
	return nil
}

// openStore connects the configured persistence backend.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return store.NewMemory(), nil

	default:
		db := cfg.Database.Postgres
		logger.Info("connecting to database",
			"host", db.Host,
			"port", db.Port,
			"database", db.Name,
		)

		pool, err := database.Connect(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}

		st := postgres.New(pool, logger)
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate schema: %w", err)
		}

		logger.Info("database connected")
		return st, nil
	}
}
