// Package api serves layout sessions and stateless layouts over HTTP.
//
// Sessions live in memory under a [session.Manager]; a stateless POST
// /v1/layout runs through the [pipeline.Runner] and its cache. Errors are
// rendered as {"error": CODE, "message": ...} with a status chosen from the
// error code.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/forcelayout/pkg/pipeline"
	"github.com/matzehuels/forcelayout/pkg/session"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 32 << 20

// Config wires a Server's dependencies.
type Config struct {
	Sessions *session.Manager
	Runner   *pipeline.Runner
	Logger   *log.Logger

	// Metrics, if set, is mounted at /metrics.
	Metrics http.Handler
}

// Server is the HTTP API.
type Server struct {
	sessions *session.Manager
	runner   *pipeline.Runner
	logger   *log.Logger
	router   chi.Router
}

// New builds the router. Nil Sessions or Runner get in-memory defaults.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = session.NewManager(0, cfg.Logger)
	}
	if cfg.Runner == nil {
		cfg.Runner = pipeline.NewRunner(nil, nil, cfg.Logger)
	}
	s := &Server{sessions: cfg.Sessions, runner: cfg.Runner, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)

	r.Get("/healthz", s.handleHealth)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/layout", s.handleLayout)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteSession)
			r.Post("/elements", s.handleAddElements)
			r.Get("/elements/{eid}", s.handleGetElement)
			r.Get("/query", s.handleQuery)
			r.Post("/layout", s.handleStartLayout)
			r.Get("/layout", s.handleLayoutStatus)
			r.Delete("/layout", s.handleCancelLayout)
		})
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
