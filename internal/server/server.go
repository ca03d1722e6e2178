// Package server exposes the table browser over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/madison88admin/supplychain-app-sub002/internal/config"
	"github.com/madison88admin/supplychain-app-sub002/internal/logger"
	"github.com/madison88admin/supplychain-app-sub002/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server owns the router and the http.Server around it.
type Server struct {
	cfg     config.Server
	tables  Tables
	exports Exports
	health  Pinger
	metrics *metrics.Metrics
	log     *logger.Logger
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithExports enables the export endpoints. Without it they answer 503.
func WithExports(e Exports) Option {
	return func(s *Server) {
		s.exports = e
	}
}

// WithHealth makes /healthz ping p.
func WithHealth(p Pinger) Option {
	return func(s *Server) {
		s.health = p
	}
}

// WithMetrics instruments every route and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// New builds the router.
func New(cfg config.Server, tables Tables, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		tables: tables,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(RequestID(s.log))
	r.Use(RequestLogger(s.log.Zerolog(), "/healthz", "/metrics"))
	r.Use(chimw.Recoverer)
	if s.metrics != nil {
		r.Use(Instrument(s.metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimiter(RateLimitConfig{
			RequestsPerSecond: s.cfg.RateLimit,
			Burst:             s.cfg.RateBurst,
		}))

		r.Get("/tables", s.listTables)
		r.Get("/tables/{tableName}", s.describeTable)
		r.Get("/data/{tableName}", s.fetchData)
		r.Post("/upload/{tableName}", s.upload)
		r.Post("/export/{tableName}", s.createExport)
		r.Get("/exports/{tableName}", s.listExports)
		r.Get("/exports/{tableName}/{name}", s.downloadExport)
	})

	return r
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully
// within cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.With().Str("addr", s.cfg.Addr).Logger().Info("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.log.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.WarnWith("shutdown error", err, nil)
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
