// Package gateway is the public HTTP surface: it maps a small set of REST
// routes onto Airtable calls so the API token never reaches the browser.
//
// # Routes
//
//	┌────────┬────────────────────────────────┬─────────┬──────────────────────────────┐
//	│ Method │ Path                           │ Success │ Upstream                     │
//	├────────┼────────────────────────────────┼─────────┼──────────────────────────────┤
//	│ GET    │ /api/health                    │ 200     │ none                         │
//	│ GET    │ /api/table/:table/records      │ 200     │ GET    {table}?view=…        │
//	│ POST   │ /api/table/:table/records      │ 201     │ POST   {table} {records:[…]} │
//	│ PATCH  │ /api/table/:table/records/:id  │ 200     │ PATCH  {table} {records:[…]} │
//	│ DELETE │ /api/table/:table/records/:id  │ 200     │ DELETE {table}?records[]=id  │
//	│ GET    │ anything else                  │ 200/404 │ static file from static_dir  │
//	└────────┴────────────────────────────────┴─────────┴──────────────────────────────┘
//
// Upstream errors are passed through with their status and body. Failures
// without an upstream status become 500 {"error":"unknown"}.
//
// # Side Effects
//
// Mutations are written to the audit trail whatever their outcome, and
// successful ones are published as change events. Both run after the
// response is written and neither affects it.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/RaikaSurendra/airtable-gateway/internal/airtable"
	"github.com/RaikaSurendra/airtable-gateway/internal/audit"
	"github.com/RaikaSurendra/airtable-gateway/internal/config"
	"github.com/RaikaSurendra/airtable-gateway/internal/events"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Server is the public gateway HTTP server.
type Server struct {
	cfg     config.ServerConfig
	engine  *gin.Engine
	srv     *http.Server
	h       *handlers
	logger  *slog.Logger
	onReady func(bool)
}

// Option configures optional collaborators of a Server.
type Option func(*Server)

// WithAuditLogger records every mutation to l.
func WithAuditLogger(l audit.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.h.audit = l
		}
	}
}

// WithPublisher publishes successful mutations to p.
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) {
		if p != nil {
			s.h.events = p
		}
	}
}

// WithReadyFunc is called with true once the listener is bound and with
// false when shutdown begins.
func WithReadyFunc(fn func(bool)) Option {
	return func(s *Server) {
		s.onReady = fn
	}
}

// NewServer builds the gin engine and routes. The configuration is read
// once here and never modified.
func NewServer(cfg *config.Config, client airtable.Client, logger *slog.Logger, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:    cfg.Server,
		logger: logger.With("component", "gateway"),
	}
	s.h = &handlers{
		client: client,
		audit:  audit.Noop{},
		events: events.Noop{},
		logger: s.logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	// Route on the escaped path so "a%2Fb" stays a single :table segment.
	engine.UseRawPath = true
	engine.UnescapePathValues = true
	// A trailing slash is served by the same handler instead of redirecting.
	engine.RedirectTrailingSlash = false

	engine.Use(
		gin.Recovery(),
		requestID(),
		accessLog(s.logger),
		cors.New(corsConfig(cfg.Server.CORSOrigins)),
	)

	for _, r := range s.h.routes() {
		engine.Handle(r.Method, r.Path, r.Handler...)
		engine.Handle(r.Method, r.Path+"/", r.Handler...)
	}
	engine.NoRoute(staticFiles(cfg.Server.StaticDir))

	s.engine = engine
	s.srv = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the gin engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start binds the listener and serves until ctx is cancelled, then shuts
// down gracefully within the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.logger.Info("gateway listening", "url", fmt.Sprintf("http://%s", s.cfg.Addr()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()
	s.setReady(true)

	select {
	case err := <-errCh:
		s.setReady(false)
		s.h.sideEffects.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway server: %w", err)
	case <-ctx.Done():
	}

	s.setReady(false)
	s.logger.Info("shutting down gateway server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration)
	defer cancel()
	err = s.srv.Shutdown(shutdownCtx)
	// Mutations already answered still get their audit line and event
	// before the caller closes those sinks.
	s.h.sideEffects.Wait()
	if err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return nil
}

func (s *Server) setReady(ready bool) {
	if s.onReady != nil {
		s.onReady(ready)
	}
}

// corsConfig allows every origin unless specific origins are configured.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", headerRequestID},
		ExposeHeaders: []string{headerRequestID},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
