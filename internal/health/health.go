// Package health provides the HTTP liveness and readiness endpoints.
//
// Docker and Kubernetes use these endpoints to monitor the daemon. When the
// daemon is running and ready to accept queries, /healthz returns 200 OK.
// When every backend circuit is open the status reads "degraded" but stays
// 200: the daemon can still serve cached and apology answers.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Server is a lightweight HTTP server that exposes /healthz and /readyz.
type Server struct {
	port     int
	ready    atomic.Bool
	degraded func() bool
	server   *http.Server
}

// New creates a new health check server.
func New(port int) *Server {
	return &Server{port: port}
}

// SetReady marks the daemon as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// SetDegradedCheck installs the probe consulted on every request. Install
// it before ListenAndServe.
func (s *Server) SetDegradedCheck(fn func() bool) {
	s.degraded = fn
}

// status resolves the current probe answer.
func (s *Server) status() (int, string) {
	if !s.ready.Load() {
		return http.StatusServiceUnavailable, "not_ready"
	}
	if s.degraded != nil && s.degraded() {
		return http.StatusOK, "degraded"
	}
	return http.StatusOK, "ok"
}

// routes builds the probe mux; split out so tests can drive it directly.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	probe := func(w http.ResponseWriter, _ *http.Request) {
		code, status := s.status()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}

	mux.HandleFunc("GET /healthz", probe)
	mux.HandleFunc("GET /readyz", probe)

	return mux
}

// ListenAndServe starts the health check HTTP server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server listening", "port", s.port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
