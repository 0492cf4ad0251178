// Package server provides a reusable rtconf server that can be embedded
// in other binaries. It assembles the storage backend, resolver,
// connection registry, push engine and HTTP surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rtconf/rtconf/internal/auth"
	"github.com/rtconf/rtconf/internal/config"
	"github.com/rtconf/rtconf/internal/logging"
	"github.com/rtconf/rtconf/internal/metrics"
	"github.com/rtconf/rtconf/internal/pusher"
	"github.com/rtconf/rtconf/internal/registry"
	"github.com/rtconf/rtconf/internal/resolve"
	"github.com/rtconf/rtconf/internal/service"
	"github.com/rtconf/rtconf/internal/store"
)

// Server is a reusable rtconf server instance.
type Server struct {
	cfg      *config.Config
	backend  store.Backend
	registry *registry.Registry
	engine   *pusher.Engine
	auth     *auth.Manager
	server   *http.Server
}

// New validates cfg, connects the storage backend, and wires all
// components. Call Serve to start listening.
func New(ctx context.Context, cfg *config.Config, version string) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	backend, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	resolver := resolve.New(backend)
	reg := registry.New(cfg.MaxConnection)
	engine := pusher.New(backend, resolver, reg)

	mgr := auth.New(backend)
	if err := mgr.EnsureDefaultAdmin(ctx); err != nil {
		_ = backend.Close(ctx)
		return nil, fmt.Errorf("ensure default admin: %w", err)
	}

	svc := service.New(service.Options{
		Store:              backend,
		Resolver:           resolver,
		Registry:           reg,
		Engine:             engine,
		Auth:               mgr,
		RequireClientToken: cfg.OpenClientAuthToken,
		MaxConnection:      cfg.MaxConnection,
		StoreType:          cfg.StoreType,
		Version:            version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           logging.HTTPMiddleware(metrics.HTTPMiddleware(svc.Handler())),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		backend:  backend,
		registry: reg,
		engine:   engine,
		auth:     mgr,
		server:   srv,
	}, nil
}

// Auth returns the server's user manager, for direct provisioning.
func (s *Server) Auth() *auth.Manager {
	return s.auth
}

// Serve starts listening and blocks until ctx is cancelled, then performs
// graceful shutdown.
func (s *Server) Serve(ctx context.Context) error {
	// Subscriber connections outlive http.Server.Shutdown because the
	// websocket upgrade hijacks them, so every request hangs off a
	// cancellable base context instead.
	connCtx, cancelConns := context.WithCancel(context.Background())
	defer cancelConns()
	s.server.BaseContext = func(net.Listener) context.Context { return connCtx }

	if err := s.engine.Start(connCtx); err != nil {
		_ = s.backend.Close(context.Background())
		return fmt.Errorf("start push engine: %w", err)
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		_ = s.backend.Close(context.Background())
		return fmt.Errorf("listen: %w", err)
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		slog.Info("server shutting down...")

		// 1. Unblock every subscriber read loop; sessions detach as
		//    their handlers return.
		cancelConns()

		// 2. Drain in-flight admin requests.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)

		close(shutdownDone)
	}()

	slog.Info("server listening", "addr", s.cfg.Addr, "store", s.cfg.StoreType)
	if err := s.server.Serve(ln); err != http.ErrServerClosed {
		_ = s.backend.Close(context.Background())
		return fmt.Errorf("serve: %w", err)
	}

	<-shutdownDone

	// 3. Announce shutdown on the bus and release the backend.
	if err := s.backend.Close(context.Background()); err != nil {
		slog.Warn("close store", "error", err)
	}
	s.registry.Close()
	return nil
}
