// Package service exposes the HTTP surface: the /connect websocket
// subscribe channel, the /rtc/api admin endpoints, and the metrics and
// health probes.
package service

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rtconf/rtconf/internal/auth"
	"github.com/rtconf/rtconf/internal/pusher"
	"github.com/rtconf/rtconf/internal/registry"
	"github.com/rtconf/rtconf/internal/resolve"
	"github.com/rtconf/rtconf/internal/store"
)

// Options wires the service to the rest of the server.
type Options struct {
	Store    store.Backend
	Resolver *resolve.Resolver
	Registry *registry.Registry
	Engine   *pusher.Engine
	Auth     *auth.Manager

	// RequireClientToken gates /connect on a valid authorization_token
	// header.
	RequireClientToken bool
	// MaxConnection and StoreType are surfaced on /rtc/api/system.
	MaxConnection int
	StoreType     string
	Version       string
}

// Service owns the HTTP handlers.
type Service struct {
	store    store.Backend
	resolver *resolve.Resolver
	registry *registry.Registry
	engine   *pusher.Engine
	auth     *auth.Manager

	requireToken bool
	maxConn      int
	storeType    string
	version      string
}

// New builds the service from its wiring options.
func New(opts Options) *Service {
	return &Service{
		store:        opts.Store,
		resolver:     opts.Resolver,
		registry:     opts.Registry,
		engine:       opts.Engine,
		auth:         opts.Auth,
		requireToken: opts.RequireClientToken,
		maxConn:      opts.MaxConnection,
		storeType:    opts.StoreType,
		version:      opts.Version,
	}
}

// Handler returns the service mux. Callers wrap it in the logging and
// metrics middleware.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rtc/api/config/list", s.handleConfigList)
	mux.HandleFunc("/rtc/api/config", s.handleConfig)
	mux.HandleFunc("/rtc/api/config/item", s.handleItem)
	mux.HandleFunc("/rtc/api/client", s.handleClientList)
	mux.HandleFunc("/rtc/api/system", s.handleSystem)
	mux.Handle("/connect", s.ConnectHandler())
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
