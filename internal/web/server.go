package web

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zigbee-descriptors/internal/binder"
	"zigbee-descriptors/internal/devicedb"
	"zigbee-descriptors/internal/zcl"
)

// ServerOption configures the web server.
type ServerOption func(*Server)

// WithAPIKey enables API key authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithAllowedOrigins sets allowed WebSocket origin patterns.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithMetrics serves the metrics of gatherer on /metrics.
func WithMetrics(gatherer prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// WithVersion sets the application version string.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// Server is the HTTP API server.
type Server struct {
	binder         *binder.Binder
	db             *devicedb.DB
	registry       *zcl.Registry
	wsHub          *WSHub
	logger         *slog.Logger
	handler        http.Handler
	apiKey         string
	allowedOrigins []string
	gatherer       prometheus.Gatherer
	version        string
	unsubEvents    func()
}

// NewServer creates a new web server. Binder events are streamed to
// WebSocket clients until Stop is called.
func NewServer(b *binder.Binder, db *devicedb.DB, registry *zcl.Registry, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		binder:   b,
		db:       db,
		registry: registry,
		logger:   logger.With("component", "web"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wsHub = NewWSHub(s.logger)
	s.unsubEvents = b.Events().OnAll(s.wsHub.Broadcast)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/definitions", s.handleAPIListDefinitions)
	api.HandleFunc("GET /api/definitions/{model}", s.handleAPIGetDefinition)
	api.HandleFunc("GET /api/definitions/{model}/properties", s.handleAPIDefinitionProperties)
	api.HandleFunc("POST /api/resolve", s.handleAPIResolve)

	api.HandleFunc("GET /api/devices", s.handleAPIListDevices)
	api.HandleFunc("GET /api/devices/{ieee}", s.handleAPIGetDevice)
	api.HandleFunc("POST /api/devices/{ieee}/bind", s.handleAPIBindDevice)
	api.HandleFunc("POST /api/devices/{ieee}/rebind", s.handleAPIRebindDevice)
	api.HandleFunc("DELETE /api/devices/{ieee}", s.handleAPIUnbindDevice)

	api.HandleFunc("GET /api/clusters", s.handleAPIListClusters)
	api.HandleFunc("GET /api/version", s.handleAPIVersion)

	// Browsers cannot send custom headers on a WebSocket upgrade and
	// scrapers do not carry the key, so only /api/ is key-protected.
	mux := http.NewServeMux()
	mux.Handle("/api/", s.requireAPIKey(api))
	mux.HandleFunc("GET /ws", s.handleWS)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.handler = s.checkOrigin(mux)
	return s
}

// Stop detaches WebSocket clients and stops streaming events.
func (s *Server) Stop() {
	if s.unsubEvents != nil {
		s.unsubEvents()
	}
	s.wsHub.Stop()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// checkOrigin answers CORS preflights and rejects cross-origin mutating
// requests from origins that are not allowed. It is a no-op when no
// origins are configured.
func (s *Server) checkOrigin(next http.Handler) http.Handler {
	if len(s.allowedOrigins) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		if !slices.Contains(s.allowedOrigins, "*") && !slices.Contains(s.allowedOrigins, origin) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
			h.Set("Access-Control-Max-Age", "3600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	if s.apiKey == "" {
		return next
	}
	want := []byte(s.apiKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("X-API-Key")), want) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}
