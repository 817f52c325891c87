package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moonlight-recovery/note-builder/internal/api"
	"github.com/moonlight-recovery/note-builder/internal/config"
	"github.com/moonlight-recovery/note-builder/internal/dictation"
	"github.com/moonlight-recovery/note-builder/internal/notegen"
	"github.com/moonlight-recovery/note-builder/internal/observability"
	"github.com/moonlight-recovery/note-builder/internal/session"
	"github.com/moonlight-recovery/note-builder/internal/stt"
	"github.com/moonlight-recovery/note-builder/internal/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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
		Str("deepgram_model", cfg.DeepgramModel).
		Str("anthropic_model", cfg.AnthropicModel).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Note Builder Service starting")

	// Pipeline clients and workflow session store
	transcriber := stt.NewDeepgramClient(cfg)
	generator := notegen.NewAnthropicClient(cfg)
	store := session.NewStore(time.Duration(cfg.SessionTTLMinutes) * time.Minute)
	defer store.Close()

	mux := http.NewServeMux()

	// Embedded workflow UI
	mux.HandleFunc("/", web.Handler())

	// Session workflow API
	handler := api.NewHandler(cfg, store, transcriber, generator)
	handler.Register(mux)

	// Live dictation WebSocket endpoint
	mux.HandleFunc("/ws/dictate", dictation.Handler(store, func() stt.LiveTranscriber {
		return stt.NewDeepgramLiveClient(cfg)
	}, cfg.AudioBufferSize))

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness checks validate vendor config without spending API calls
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"deepgram": func(ctx context.Context) (bool, error) {
			if cfg.DeepgramAPIKey == "" {
				return false, fmt.Errorf("deepgram api key not configured")
			}
			return true, nil
		},
		"anthropic": func(ctx context.Context) (bool, error) {
			if cfg.AnthropicAPIKey == "" {
				return false, fmt.Errorf("anthropic api key not configured")
			}
			return true, nil
		},
	}))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts. Write timeout leaves room for the
	// Deepgram prerecorded call, which can take minutes on long audio.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.DeepgramTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.DeepgramTimeout+30) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		url := cfg.PublicURL
		if url == "" {
			url = fmt.Sprintf("http://localhost:%s/", cfg.Port)
		}
		logger.Info().
			Str("port", cfg.Port).
			Str("url", url).
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
