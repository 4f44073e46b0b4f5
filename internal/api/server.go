// Package api implements the HTTP API: the question endpoints, tool
// introspection, usage and the live event stream.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nugget/loanagent/internal/agent"
	"github.com/nugget/loanagent/internal/buildinfo"
	"github.com/nugget/loanagent/internal/connwatch"
	"github.com/nugget/loanagent/internal/events"
	"github.com/nugget/loanagent/internal/tools"
	"github.com/nugget/loanagent/internal/usage"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Asker answers customer questions. *agent.Loop implements it.
type Asker interface {
	Ask(ctx context.Context, req agent.Request) (*agent.Response, error)
}

// UsageSummarizer reports usage over a window. *usage.Store implements
// it.
type UsageSummarizer interface {
	Summary(ctx context.Context, start, end time.Time) (*usage.Summary, error)
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here usually mean the client went away.
func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// HealthReporter reports dependency reachability. *connwatch.Monitor
// implements it.
type HealthReporter interface {
	Status() []connwatch.Status
	Healthy() bool
}

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	asker    Asker
	registry *tools.Registry
	usage    UsageSummarizer
	bus      *events.Bus
	health   HealthReporter
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, asker Asker, registry *tools.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:  address,
		port:     port,
		asker:    asker,
		registry: registry,
		logger:   logger.With("component", "api"),
	}
}

// SetUsageStore enables GET /v1/usage.
func (s *Server) SetUsageStore(u UsageSummarizer) {
	s.usage = u
}

// SetEventBus enables GET /v1/events.
func (s *Server) SetEventBus(b *events.Bus) {
	s.bus = b
}

// SetHealthReporter adds dependency state to GET /health.
func (s *Server) SetHealthReporter(h HealthReporter) {
	s.health = h
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /ask", s.handleAskForm)
	mux.HandleFunc("POST /v1/ask", s.handleAskJSON)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)

	mux.HandleFunc("GET /v1/tools", s.handleTools)
	mux.HandleFunc("POST /v1/tools/{name}", s.handleToolCall)

	mux.HandleFunc("GET /v1/usage", s.handleUsage)
	mux.HandleFunc("GET /v1/events", s.handleEvents)

	return s.withLogging(mux)
}

// Start serves HTTP until the listener fails or Shutdown is called.
// It returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Runs are bounded by the agent timeout; leave headroom.
		WriteTimeout: 60 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack is needed for the WebSocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.status = http.StatusSwitchingProtocols
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "healthy"}
	status := http.StatusOK
	if s.health != nil {
		body["dependencies"] = s.health.Status()
		if !s.health.Healthy() {
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, body, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.RuntimeInfo(), s.logger)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.errorResponse(w, http.StatusNotFound, "not_found", "usage tracking is disabled")
		return
	}

	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.errorResponse(w, http.StatusBadRequest, "invalid_request", "hours must be a positive integer")
			return
		}
		hours = n
	}

	end := time.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)
	sum, err := s.usage.Summary(r.Context(), start, end)
	if err != nil {
		s.logger.Error("usage summary failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "internal", "usage summary unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"window_hours": hours,
		"since":        start.UTC().Format(time.RFC3339),
		"summary":      sum,
	}, s.logger)
}

// errorResponse writes {"error": {"category": ..., "message": ...}}.
func (s *Server) errorResponse(w http.ResponseWriter, status int, category, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"category": category,
			"message":  message,
		},
	}, s.logger)
}
