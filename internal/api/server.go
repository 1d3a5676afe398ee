// Package api exposes the suggestion service over HTTP.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/homestock/homestock/internal/inventory"
	"github.com/homestock/homestock/internal/observability"
	"github.com/homestock/homestock/internal/suggest"
)

const (
	minLimit = 1
	maxLimit = 50
)

// Config configures the HTTP server.
type Config struct {
	Addr             string
	DefaultHousehold string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	ShutdownTimeout  time.Duration
	MaxBodyBytes     int64
	Version          string
}

func (c *Config) setDefaults() {
	if c.DefaultHousehold == "" {
		c.DefaultHousehold = "1"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 << 20
	}
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Locker runs maintenance work exclusively.
type Locker interface {
	Run(ctx context.Context, fn func(context.Context) error) error
}

// Server serves the autocomplete API.
type Server struct {
	cfg      Config
	svc      *suggest.Service
	recorder *inventory.Recorder
	log      *observability.Logger
	pinger   Pinger
	maint    Locker
	metrics  http.Handler
	started  time.Time

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l *observability.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithPinger adds a store health check to GET /health.
func WithPinger(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// WithMaintenanceLock serialises initialize and cleanup requests.
func WithMaintenanceLock(l Locker) Option {
	return func(s *Server) { s.maint = l }
}

// WithMetricsHandler serves h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewServer creates the API server over svc.
func NewServer(cfg Config, svc *suggest.Service, opts ...Option) *Server {
	cfg.setDefaults()
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		log:     observability.Discard(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = observability.Discard()
	}
	s.recorder = inventory.NewRecorder(svc, s.log)
	return s
}

// Handler returns the routed handler with request ID and logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/autocomplete/suggestions/{field_type}", s.handleSuggestions)
	mux.HandleFunc("GET /api/autocomplete/suggestions/{field_type}/simple", s.handleSimpleSuggestions)
	mux.HandleFunc("POST /api/autocomplete/record", s.handleRecord)
	mux.HandleFunc("POST /api/items/committed", s.handleItemCommitted)
	mux.HandleFunc("GET /api/autocomplete/statistics", s.handleStatistics)
	mux.HandleFunc("POST /api/autocomplete/initialize", s.handleInitialize)
	mux.HandleFunc("POST /api/autocomplete/cleanup", s.handleCleanup)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return s.withRequestID(mux)
}

// Start listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("api: listen: %w", err)
	}
	s.listener = ln
	srv := s.srv
	s.mu.Unlock()

	s.log.Info("api listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: serve: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// Addr returns the listener address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

func (s *Server) maintenance(ctx context.Context, fn func(context.Context) error) error {
	if s.maint == nil {
		return fn(ctx)
	}
	return s.maint.Run(ctx, fn)
}
