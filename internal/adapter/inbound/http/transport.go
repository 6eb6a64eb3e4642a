package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/routewarden/routewarden/internal/domain/audit"
	"github.com/routewarden/routewarden/internal/domain/auth"
	"github.com/routewarden/routewarden/internal/service"
)

// tracerName identifies spans emitted by this package.
const tracerName = "github.com/routewarden/routewarden/internal/adapter/inbound/http"

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// Server exposes the guard service over HTTP:
//
//	POST /v1/decide     evaluate an identity against a path
//	GET  /v1/policies   list the active policy table
//	POST /v1/reload     rebuild the table from the store
//	GET  /v1/decisions  recent audit records
//	GET  /health        liveness and table status
//	GET  /metrics       Prometheus metrics
type Server struct {
	guard   *service.GuardService
	addr    string
	keyring *auth.Keyring
	auditor audit.Store
	version string
	logger  *slog.Logger

	server  *http.Server
	metrics *Metrics
}

// Option is a functional option for configuring Server.
type Option func(*Server)

// WithAddr sets the listen address. Default is "127.0.0.1:8484".
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithKeyring enables API key authentication on the /v1 endpoints.
func WithKeyring(kr *auth.Keyring) Option {
	return func(s *Server) { s.keyring = kr }
}

// WithAuditStore exposes recent decision records on /v1/decisions.
func WithAuditStore(store audit.Store) Option {
	return func(s *Server) { s.auditor = store }
}

// WithVersion sets the version string reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates the HTTP server wrapping the given guard service.
func NewServer(guard *service.GuardService, opts ...Option) *Server {
	s := &Server{
		guard:  guard,
		addr:   "127.0.0.1:8484",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the full handler chain. Exposed separately from Start so
// tests can drive the server through httptest.
func (s *Server) Handler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = NewMetrics(reg,
		func() float64 { return float64(s.guard.PolicyCount()) },
		func() float64 { return float64(s.guard.CacheHits()) },
	)

	api := http.NewServeMux()
	api.HandleFunc("POST /v1/decide", s.handleDecide)
	api.HandleFunc("GET /v1/policies", s.handlePolicies)
	api.HandleFunc("POST /v1/reload", s.handleReload)
	api.HandleFunc("GET /v1/decisions", s.handleRecentDecisions)

	// Middleware order (outermost first): metrics captures full duration,
	// request ID enriches the logger before auth can log rejections.
	var apiHandler http.Handler = api
	apiHandler = APIKeyAuthMiddleware(s.keyring, s.logger)(apiHandler)
	apiHandler = RealIPMiddleware(apiHandler)
	apiHandler = RequestIDMiddleware(s.logger)(apiHandler)
	apiHandler = MetricsMiddleware(s.metrics)(apiHandler)

	mux := http.NewServeMux()
	mux.Handle("/v1/", apiHandler)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

// handleHealth reports liveness. The service is healthy whenever a compiled
// policy table is loaded; an empty table is valid (everything fail-open).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"policies": s.guard.PolicyCount(),
		"version":  s.version,
	})
}

// Start begins serving and blocks until the context is cancelled or the
// listener fails. Shutdown is graceful with a bounded timeout.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down HTTP server")
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return err
	}
	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	return s.shutdown()
}
