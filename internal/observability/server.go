// Package observability provides the HTTP server for health checks and
// Prometheus metrics endpoints.
//
// # Endpoints
//
//   - GET /healthz: Returns 200 while the process is running. Used by
//     container liveness probes.
//
//   - GET /readyz: Returns 200 once the public gateway listener is up,
//     503 before that and during shutdown.
//
//   - GET /metrics: Prometheus metrics in text exposition format.
//
// # Custom Metrics
//
//	┌────────────────────────────────────────┬─────────┬──────────────────────────────────────┐
//	│ Metric Name                            │ Type    │ Description                          │
//	├────────────────────────────────────────┼─────────┼──────────────────────────────────────┤
//	│ gateway_http_requests_total            │ Counter │ Inbound requests by route and status │
//	│ gateway_http_request_duration_seconds  │ Hist    │ Inbound request latency              │
//	│ gateway_upstream_requests_total        │ Counter │ Calls made to the Airtable API       │
//	│ gateway_upstream_errors_total          │ Counter │ Failed upstream calls (by code)      │
//	│ gateway_upstream_latency_seconds       │ Hist    │ Airtable API response latency        │
//	│ gateway_events_published_total         │ Counter │ Mutation events acknowledged         │
//	│ gateway_events_errors_total            │ Counter │ Mutation events that failed          │
//	│ gateway_audit_errors_total             │ Counter │ Audit entries that could not be saved│
//	└────────────────────────────────────────┴─────────┴──────────────────────────────────────┘
//
// # Usage
//
//	srv := observability.NewServer(":9090", logger)
//	go srv.Start(ctx)
//	// When the gateway is listening:
//	srv.SetReady(true)
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ----- Prometheus Metrics -----

// Metrics holds all Prometheus metrics used by the gateway.
// Using promauto for automatic registration with the default registry.
var Metrics = struct {
	// Inbound HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Airtable API metrics
	UpstreamRequestsTotal *prometheus.CounterVec
	UpstreamErrorsTotal   *prometheus.CounterVec
	UpstreamLatency       *prometheus.HistogramVec

	// Change feed metrics
	EventsPublishedTotal *prometheus.CounterVec
	EventsErrorsTotal    *prometheus.CounterVec

	AuditErrorsTotal prometheus.Counter
}{
	HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_http_requests_total",
		Help: "Total number of inbound HTTP requests.",
	}, []string{"method", "route", "status"}),

	HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_http_request_duration_seconds",
		Help:    "Duration of inbound HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"}),

	UpstreamRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_requests_total",
		Help: "Total number of Airtable API requests.",
	}, []string{"method", "operation"}),

	UpstreamErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_errors_total",
		Help: "Total number of Airtable API errors by status code.",
	}, []string{"method", "status_code"}),

	UpstreamLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_upstream_latency_seconds",
		Help:    "Airtable API response latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "operation"}),

	EventsPublishedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_published_total",
		Help: "Total number of mutation events acknowledged by Kafka.",
	}, []string{"topic", "operation"}),

	EventsErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_errors_total",
		Help: "Total number of mutation events that could not be published.",
	}, []string{"topic", "error_type"}),

	AuditErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_audit_errors_total",
		Help: "Total number of audit entries that could not be written.",
	}),
}

// ----- Health/Readiness Server -----

// Server provides HTTP endpoints for health checks, readiness probes,
// and Prometheus metrics.
type Server struct {
	addr   string
	ready  atomic.Bool
	logger *slog.Logger
	srv    *http.Server
}

// NewServer creates a new observability HTTP server.
func NewServer(addr string, logger *slog.Logger) *Server {
	s := &Server{
		addr:   addr,
		logger: logger.With("component", "observability"),
	}

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the mux serving the probe and metrics endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start begins listening for HTTP requests. Blocks until the context is
// cancelled, then gracefully shuts down the server.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("observability server starting", "addr", s.addr)

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down observability server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("observability server: %w", err)
	}
	return nil
}

// SetReady marks the server as ready (or not ready) for readiness probes.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
	s.logger.Info("readiness state changed", "ready", ready)
}

// handleHealth responds with 200 OK: the process is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"status":"healthy"}`)
}

// handleReady responds with 200 if ready, 503 if not yet ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ready"}`)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, `{"status":"not_ready"}`)
	}
}
