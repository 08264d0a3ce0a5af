// Package httpadapter exposes the pipeline's operational endpoints: health,
// readiness, Prometheus metrics, and the latest run status. A global run
// takes hours; /status lets operators see progress without tailing logs.
package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/estuarymap/salinity-etl/internal/report"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// runStatus is the JSON body served by /status.
type runStatus struct {
	State         string    `json:"state"` // running, completed, failed
	RunID         string    `json:"run_id,omitempty"`
	GeneratedAt   time.Time `json:"generated_at,omitzero"`
	TotalSegments int       `json:"total_segments,omitempty"`
	Valid         *bool     `json:"valid,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Server exposes health, readiness, metrics, and status HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger

	mu     sync.RWMutex
	status runStatus
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// /status routes.
func NewServer(addr string, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		status: runStatus{State: "running"},
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /status", s.handleStatus)

	return s
}

// SetCompleted records a finished run for /status.
func (s *Server) SetCompleted(rep report.RunReport) {
	valid := rep.Valid
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = runStatus{
		State:         "completed",
		RunID:         rep.RunID,
		GeneratedAt:   rep.GeneratedAt,
		TotalSegments: rep.TotalSegments,
		Valid:         &valid,
	}
}

// SetFailed records a failed run for /status.
func (s *Server) SetFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = runStatus{State: "failed", Error: err.Error()}
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, status)
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort health response
}
