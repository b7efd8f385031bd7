package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/dmnsim/internal/domain"
	"github.com/opensource-finance/dmnsim/internal/metrics"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. eventBus and collector may be nil.
func NewServer(cfg *domain.Config, sim Simulator, eventBus domain.EventBus, collector *metrics.Collector, version string) *Server {
	handler := NewHandler(sim, eventBus, cfg.Engine.MaxDocumentBytes, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins)) // CORS for browser clients
	router.Use(RecoverMiddleware)                         // Recover from panics
	router.Use(TracingMiddleware)                         // OpenTelemetry tracing
	router.Use(LoggingMiddleware)                         // Request logging
	router.Use(MetricsMiddleware(collector))              // Prometheus request metrics
	router.Use(middleware.RealIP)                         // Extract real IP
	router.Use(middleware.Compress(5))                    // Gzip compression

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	if collector != nil && cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, collector.Handler())
	}

	router.Route("/api/dmn", func(r chi.Router) {
		if cfg.Server.RequestTimeout > 0 {
			r.Use(middleware.Timeout(time.Duration(cfg.Server.RequestTimeout) * time.Second))
		}

		r.Post("/parse", handler.Parse)
		r.Post("/evaluate", handler.Evaluate)
		r.Post("/allowed-values", handler.AllowedValues)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg.Server,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
