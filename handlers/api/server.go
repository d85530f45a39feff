package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/nijaru/interview-feedback/config"
	"github.com/nijaru/interview-feedback/metrics"
	"github.com/nijaru/interview-feedback/middleware"
	"github.com/nijaru/interview-feedback/services/analysis"
	"github.com/nijaru/interview-feedback/validation"
	"github.com/sirupsen/logrus"
)

type Server struct {
	analyze   *AnalyzeHandler
	metrics   *metrics.Collector
	config    *config.Config
	logger    *logrus.Logger
	server    *http.Server
	startTime time.Time
	providers []string
}

type ServerOption func(*Server)

// NewServer creates the API server. WithAnalysisService must be supplied.
func NewServer(cfg *config.Config, opts ...ServerOption) *Server {
	s := &Server{
		config:    cfg,
		logger:    logrus.StandardLogger(),
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// WithLogger must precede WithAnalysisService to reach the handler.
func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithAnalysisService(svc analysis.Service, validator *validation.Validator) ServerOption {
	return func(s *Server) {
		s.analyze = NewAnalyzeHandler(svc, validator, s.config.Upload, s.logger)
	}
}

func WithMetrics(c *metrics.Collector) ServerOption {
	return func(s *Server) {
		s.metrics = c
	}
}

// WithProviders lists the providers reported by the health check.
func WithProviders(names ...string) ServerOption {
	return func(s *Server) {
		s.providers = names
	}
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	s.logger.WithField("port", s.config.ServerPort).Info("Starting server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	if s.analyze != nil {
		mux.HandleFunc("POST /api/analyze-video", s.analyze.HandleAnalyzeVideo)
	}
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return s.middleware(mux)
}

func (s *Server) middleware(handler http.Handler) http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID(),
		middleware.Logging(s.logger),
	}

	// Metrics must sit after the last middleware that copies the request,
	// so the mux's route pattern is visible to it.
	if s.metrics != nil {
		middlewares = append(middlewares, middleware.Metrics(s.metrics))
	}

	middlewares = append(middlewares, middleware.CORS(s.config.CORS))

	if s.config.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.config.RateLimit.RequestsPerMinute,
			s.config.RateLimit.BurstSize,
		)
		middlewares = append(middlewares, rateLimiter.Middleware)
	}

	return middleware.Chain(handler, middlewares...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   s.config.Version,
		"uptime":    time.Since(s.startTime).String(),
		"providers": s.providers,
	}

	if s.config.Debug {
		status["debug"] = true
		status["goroutines"] = runtime.NumGoroutine()
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		status["memory"] = map[string]interface{}{
			"allocated": m.Alloc,
			"total":     m.TotalAlloc,
			"system":    m.Sys,
			"gc_cycles": m.NumGC,
		}
	}

	respondEnvelope(w, r, http.StatusOK, status)
}
