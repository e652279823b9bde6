// Package httpapi exposes the broker over HTTP: a WebSocket carrying the
// method repository, an SSE event stream, public introspection endpoints and
// a JWT-protected admin surface for emitting records and driving the shell.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/rmacdonaldsmith/shellwatch/internal/broker"
	"github.com/rmacdonaldsmith/shellwatch/internal/eventloop"
	"github.com/rmacdonaldsmith/shellwatch/internal/ipc"
	"github.com/rmacdonaldsmith/shellwatch/internal/shell"
	brokerpkg "github.com/rmacdonaldsmith/shellwatch/pkg/broker"
)

const (
	// DefaultAddress is the listen address used when none is configured
	DefaultAddress = "127.0.0.1:8080"
	// DefaultKeepalive is the SSE keepalive comment interval
	DefaultKeepalive = 15 * time.Second
)

var (
	// ErrInvalidKeepalive is returned for a negative keepalive interval
	ErrInvalidKeepalive = errors.New("keepalive interval cannot be negative")
	// ErrMissingHost is returned when a required host component is nil
	ErrMissingHost = errors.New("loop, broker and repository are required")
)

// Config holds server configuration
type Config struct {
	// Address is the TCP listen address
	Address string

	// SecretKey signs admin tokens. A random key is generated when empty,
	// so tokens do not survive a restart.
	SecretKey string

	// AdminKey is exchanged for an admin token at login. Empty disables
	// the admin surface.
	AdminKey string

	// TokenTTL is how long issued tokens are valid
	TokenTTL time.Duration

	// Keepalive is the interval between SSE keepalive comments
	Keepalive time.Duration

	// ClientBuffer is the outbound record buffer of each streaming client
	ClientBuffer int

	// MaxMessageSize bounds an inbound WebSocket message
	MaxMessageSize int64

	Logger *slog.Logger
}

// SetDefaults fills in unset fields
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.SecretKey == "" {
		c.SecretKey = uuid.NewString()
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.Keepalive == 0 {
		c.Keepalive = DefaultKeepalive
	}
	if c.ClientBuffer == 0 {
		c.ClientBuffer = broker.DefaultClientBuffer
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = ipc.DefaultMaxMessageSize
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Keepalive < 0 {
		return ErrInvalidKeepalive
	}
	if c.ClientBuffer < 0 {
		return fmt.Errorf("client buffer must be positive, got %d", c.ClientBuffer)
	}
	if c.MaxMessageSize < 0 {
		return fmt.Errorf("max message size must be positive, got %d", c.MaxMessageSize)
	}
	return nil
}

// Host bundles the host components the API drives. Core may be nil, in
// which case the shell endpoints are unavailable.
type Host struct {
	Loop   *eventloop.Loop
	Broker brokerpkg.Broker
	Repo   *ipc.Repository
	Core   *shell.Core
}

// Server represents the HTTP API server
type Server struct {
	config     *Config
	handlers   *Handlers
	middleware *Middleware
	router     chi.Router
	server     *http.Server
	logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new HTTP API server
func NewServer(config *Config, host Host) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if host.Loop == nil || host.Broker == nil || host.Repo == nil {
		return nil, ErrMissingHost
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	jwtAuth := NewJWTAuth(config.SecretKey, config.AdminKey, config.TokenTTL)
	s := &Server{
		config:     config,
		handlers:   NewHandlers(config, host, jwtAuth),
		middleware: NewMiddleware(jwtAuth, config.Logger),
		logger:     config.Logger,
	}
	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:              config.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	s.server.RegisterOnShutdown(s.handlers.shutdown)
	return s, nil
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
		}
	}()

	s.logger.Info("http api listening", "address", listener.Addr().String())
	return nil
}

// Addr returns the bound address, or the configured one before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

// Stop ends every stream, gracefully stops the HTTP server and waits for
// WebSocket sessions to finish their disconnects
func (s *Server) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.handlers.shutdown()
	s.handlers.wait()
	return err
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.middleware.Recovery)
	r.Use(s.middleware.Logging)
	r.Use(s.middleware.CORS)

	r.Get("/", s.handleRoot)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handlers.Login)
		r.Get("/health", s.handlers.Health)
		r.Get("/topics", s.handlers.Topics)
		r.Get("/events/stream", s.handlers.StreamEvents)
		r.Get("/ipc", s.handlers.ServeIPC)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.middleware.AdminRequired)
			r.Get("/clients", s.handlers.AdminListClients)
			r.Get("/stats", s.handlers.AdminGetStats)
			r.Post("/emit", s.handlers.AdminEmit)
			r.Post("/shell", s.handlers.AdminShell)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "Not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	return r
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":    "shellwatch",
		"version": "v1",
		"endpoints": map[string]any{
			"auth":   []string{"POST /api/v1/auth/login"},
			"events": []string{"GET /api/v1/events/stream?events=a,b", "GET /api/v1/ipc (websocket)"},
			"topics": []string{"GET /api/v1/topics"},
			"admin": []string{
				"GET /api/v1/admin/clients",
				"GET /api/v1/admin/stats",
				"POST /api/v1/admin/emit",
				"POST /api/v1/admin/shell",
			},
			"health": []string{"GET /api/v1/health"},
		},
	}
	writeJSON(w, info, http.StatusOK)
}
