// Package microservice provides the HTTP side of the bridge process: health,
// readiness and Prometheus metrics endpoints.
package microservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Service is anything the process starts and later shuts down.
type Service interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// BaseServer serves /healthz, /readyz and, when a gatherer is given, /metrics.
type BaseServer struct {
	logger     zerolog.Logger
	addr       string
	httpServer *http.Server
	mux        *http.ServeMux
	ready      atomic.Bool
	actualAddr string
	mu         sync.RWMutex
}

// NewBaseServer creates a server for addr (e.g. ":9090"). gatherer may be
// nil, in which case /metrics is not registered.
func NewBaseServer(logger zerolog.Logger, addr string, gatherer prometheus.Gatherer) *BaseServer {
	s := &BaseServer{
		logger: logger.With().Str("component", "HTTPServer").Logger(),
		addr:   addr,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("/healthz", HealthzHandler)
	s.mux.HandleFunc("/readyz", s.readyzHandler)
	if gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	s.httpServer = &http.Server{Addr: addr, Handler: s.mux}
	return s
}

// Start listens and serves in a background goroutine.
func (s *BaseServer) Start(_ context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.actualAddr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info().Str("address", s.actualAddr).Msg("HTTP server starting to listen")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server, respecting ctx's deadline.
func (s *BaseServer) Shutdown(ctx context.Context) error {
	s.SetReady(false)
	s.logger.Info().Msg("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Error during HTTP server shutdown.")
		return err
	}
	s.logger.Info().Msg("HTTP server stopped.")
	return nil
}

// SetReady flips /readyz between 200 and 503.
func (s *BaseServer) SetReady(ready bool) { s.ready.Store(ready) }

// Addr returns the address actually listened on, or the configured one
// before Start.
func (s *BaseServer) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.actualAddr == "" {
		return s.addr
	}
	return s.actualAddr
}

// Mux returns the underlying ServeMux.
func (s *BaseServer) Mux() *http.ServeMux {
	return s.mux
}

// HealthzHandler responds to liveness probes.
func HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *BaseServer) readyzHandler(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("READY"))
}
