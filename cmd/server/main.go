package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harlantwood/convo/internal/api"
	"github.com/harlantwood/convo/internal/config"
	"github.com/harlantwood/convo/internal/observability"
	"github.com/harlantwood/convo/internal/stream"
	"github.com/harlantwood/convo/internal/stt"
	"github.com/harlantwood/convo/internal/tts"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("deepgram_model", cfg.DeepgramModel).
		Str("tts_model", cfg.OpenAITTSModel).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("convo service starting")

	synth := tts.NewOpenAIClient(cfg)
	sttBreaker := stt.NewBreaker(cfg)

	handler, err := api.New(cfg, synth)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid render configuration")
	}

	mux := http.NewServeMux()
	handler.Register(mux)

	mux.HandleFunc("GET /streams/transcribe", stream.HandleTranscribeWS(cfg, func() stt.Transcriber {
		return stt.NewDeepgramClient(cfg, sttBreaker)
	}))

	mux.HandleFunc("GET /health", observability.HealthCheckHandler())
	mux.HandleFunc("GET /ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"deepgram": stt.HealthCheck(sttBreaker),
		"openai":   synth.HealthCheck,
	}))

	if cfg.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	var grpcHealth *observability.GRPCHealthServer
	if cfg.GRPCHealthPort != "" {
		grpcHealth, err = observability.NewGRPCHealthServer(":" + cfg.GRPCHealthPort)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to start gRPC health server")
		}
		go func() {
			if err := grpcHealth.Serve(); err != nil {
				logger.Error().Err(err).Msg("gRPC health server stopped")
			}
		}()
		grpcHealth.SetServing("", true)
		logger.Info().Str("addr", grpcHealth.Addr().String()).Msg("gRPC health service listening")
	}

	// WriteTimeout stays unset: transcription streams are long-lived.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		base := cfg.PublicBaseURL()
		logger.Info().
			Str("port", cfg.Port).
			Str("render", base+"/render").
			Str("tts", base+"/tts").
			Str("stream", "ws"+strings.TrimPrefix(base, "http")+"/streams/transcribe").
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	if grpcHealth != nil {
		grpcHealth.MarkNotServing()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if grpcHealth != nil {
		grpcHealth.Stop(ctx)
	}

	logger.Info().Msg("Server exited gracefully")
}

