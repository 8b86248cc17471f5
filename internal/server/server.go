// Package server wires the HTTP surface of the execution engine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/harmoniceagle/trader/internal/config"
	"github.com/harmoniceagle/trader/internal/domain"
	"github.com/harmoniceagle/trader/internal/modules/journal"
	"github.com/harmoniceagle/trader/internal/modules/signals"
	"github.com/harmoniceagle/trader/internal/scheduler"
)

// Config holds server dependencies.
type Config struct {
	Port           int
	DevMode        bool
	Log            zerolog.Logger
	AppConfig      *config.Config
	Broker         domain.BrokerClient
	Alerts         domain.AlertSink
	JournalHandler *journal.Handler
	WebhookHandler *signals.Handler
	Scheduler      *scheduler.Scheduler
	TriggerJobs    []scheduler.Job // jobs exposed for manual triggering
}

// Server is the HTTP server.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	cfg     *config.Config
	broker  domain.BrokerClient
	alerts  domain.AlertSink
	sched   *scheduler.Scheduler
	jobs    map[string]scheduler.Job
	started time.Time
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		cfg:     cfg.AppConfig,
		broker:  cfg.Broker,
		alerts:  cfg.Alerts,
		sched:   cfg.Scheduler,
		jobs:    make(map[string]scheduler.Job, len(cfg.TriggerJobs)),
		started: time.Now(),
	}
	for _, job := range cfg.TriggerJobs {
		s.jobs[job.Name()] = job
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // condor fill polls can hold a request
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes(cfg Config) {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Post("/webhook", cfg.WebhookHandler.ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/journal", cfg.JournalHandler.RegisterRoutes)

		r.Get("/positions", s.handlePositions)
		r.Get("/account", s.handleAccount)
		r.Get("/orders", s.handleOrders)
		r.Post("/emergency/liquidate", s.handleLiquidate)

		r.Route("/system", func(r chi.Router) {
			r.Get("/", s.handleSystemStatus)
		})

		r.Post("/jobs/{name}", s.handleTriggerJob)
	})

	s.router.Get("/debug/scheduler", s.handleSchedulerDebug)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
