package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nijaru/interview-feedback/config"
	"github.com/nijaru/interview-feedback/handlers/api"
	"github.com/nijaru/interview-feedback/logger"
	"github.com/nijaru/interview-feedback/media"
	"github.com/nijaru/interview-feedback/metrics"
	"github.com/nijaru/interview-feedback/models"
	"github.com/nijaru/interview-feedback/pricing"
	"github.com/nijaru/interview-feedback/providers"
	"github.com/nijaru/interview-feedback/providers/gemini"
	"github.com/nijaru/interview-feedback/providers/openai"
	"github.com/nijaru/interview-feedback/services/analysis"
	"github.com/nijaru/interview-feedback/storage"
	"github.com/nijaru/interview-feedback/validation"
)

// scratch entries older than this are left over from a crash
const staleScratchAge = time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logr, logCloser, err := logger.New(cfg.Log, cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logCloser.Close()

	store, err := storage.NewStore(cfg.TempDir, logr)
	if err != nil {
		logr.WithError(err).Fatal("Failed to initialize scratch storage")
	}
	if n, err := store.Sweep(staleScratchAge); err != nil {
		logr.WithError(err).Warn("Failed to sweep scratch storage")
	} else if n > 0 {
		logr.WithField("removed", n).Info("Removed stale scratch entries")
	}

	// Clients are built on first use so a missing key only fails its provider.
	registry := providers.NewRegistry()
	registry.RegisterFactory(models.ProviderOpenAI, func() (providers.Analyzer, error) {
		return openai.New(cfg.OpenAI, openai.WithLogger(logr))
	})
	registry.RegisterFactory(models.ProviderGemini, func() (providers.Analyzer, error) {
		return gemini.New(cfg.Gemini, gemini.WithLogger(logr))
	})

	collector := metrics.NewCollector()
	validator := validation.NewValidator(cfg)

	analysisService := analysis.NewService(
		validator,
		store,
		media.NewExtractor(cfg.Frames, media.ExecRunner{}, logr),
		registry,
		pricing.NewCalculator(cfg.Pricing),
		analysis.Config{MaxFileSize: cfg.Upload.MaxFileSize},
		analysis.WithRecorder(collector),
		analysis.WithLogger(logr),
	)

	names := make([]string, 0, len(models.Providers))
	for _, p := range registry.Providers() {
		names = append(names, p.String())
	}

	server := api.NewServer(cfg,
		api.WithLogger(logr),
		api.WithAnalysisService(analysisService, validator),
		api.WithMetrics(collector),
		api.WithProviders(names...),
	)

	// Graceful shutdown setup
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-shutdownChan

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logr.WithError(err).Error("Server shutdown error")
		}
	}()

	if err := server.Start(); err != nil && err != http.ErrServerClosed {
		logr.WithError(err).Fatal("Server error")
	}
	<-done
}
