package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/careerpal/interview-gateway/internal/analyzer"
	"github.com/careerpal/interview-gateway/internal/chat"
	"github.com/careerpal/interview-gateway/internal/config"
	"github.com/careerpal/interview-gateway/internal/gateway"
	"github.com/careerpal/interview-gateway/internal/gemini"
	"github.com/careerpal/interview-gateway/internal/image"
	"github.com/careerpal/interview-gateway/internal/observability"
	"github.com/careerpal/interview-gateway/internal/resilience"
	"github.com/careerpal/interview-gateway/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("live_model", cfg.LiveModel).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Interview Gateway Service starting")

	// Durable storage for transcripts, reports, chat, and images
	st, err := store.Open(cfg.DatabasePath, cfg.ImageHistoryCap)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	defer st.Close()

	client := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiBaseURL)
	archive := store.NewSessionArchive(st)

	retryCfg := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}

	chatSvc := chat.New(client, st, chat.Config{
		Model:      cfg.ChatModel,
		HistoryCap: cfg.ChatHistoryCap,
		Retry:      retryCfg,
	}, logger)

	imageSvc := image.New(client, st, image.Config{
		Model:    cfg.ImageModel,
		ProModel: cfg.ImageProModel,
	}, logger)

	// Create HTTP server
	mux := http.NewServeMux()

	// Register interview WebSocket handler
	mux.HandleFunc("/streams/interview", gateway.NewHandler(gateway.Deps{
		Transport: gateway.NewLiveTransport(client, cfg),
		Analyzer:  analyzer.New(client, cfg.TextModel, logger),
		Archive:   archive,
		Config:    cfg,
		Logger:    logger,
	}))

	// Chat, image, and persistence endpoints
	(&api{
		chat:    chatSvc,
		images:  imageSvc,
		archive: archive,
		store:   st,
		logger:  logger,
	}).register(mux)

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness endpoint
	modelCheck := func(ctx context.Context) (bool, error) {
		// Config validation only; no API call, to avoid cost per probe
		if cfg.GeminiAPIKey == "" {
			return false, fmt.Errorf("missing API key")
		}
		return true, nil
	}
	storeCheck := func(ctx context.Context) (bool, error) {
		if err := st.Ping(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(modelCheck, storeCheck))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// No read/write timeouts: interview WebSocket sessions are long-lived
	// and have no server-enforced deadline.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/streams/interview", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
