package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/insight-gateway/internal/api"
	"github.com/lexiqai/insight-gateway/internal/config"
	"github.com/lexiqai/insight-gateway/internal/insight"
	"github.com/lexiqai/insight-gateway/internal/observability"
	"github.com/lexiqai/insight-gateway/internal/pipeline"
	"github.com/lexiqai/insight-gateway/internal/stt"
	"github.com/lexiqai/insight-gateway/internal/upload"
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
		Str("insight_provider", cfg.InsightProvider).
		Str("insight_model", cfg.InsightModel).
		Str("deepgram_model", cfg.DeepgramModel).
		Int("max_upload_mb", cfg.MaxUploadMB).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Insight Gateway Service starting")

	transcriber := stt.NewDeepgramClient(cfg)

	completer, err := newCompleter(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create insight provider client")
	}

	logic := insight.DefaultSentimentLogic()
	if cfg.PromptTemplateFile != "" {
		logic, err = insight.LoadSentimentLogic(cfg.PromptTemplateFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load prompt template")
		}
		logger.Info().Str("file", cfg.PromptTemplateFile).Msg("Loaded prompt template")
	}
	analyzer := insight.NewAnalyzer(completer, insight.NewPromptBuilder(logic), cfg)

	store, err := upload.NewStore(cfg.UploadDir, cfg.MaxUploadBytes())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to prepare upload directory")
	}
	janitor := upload.NewJanitor(store,
		time.Duration(cfg.UploadSweepInterval)*time.Minute,
		time.Duration(cfg.UploadMaxAge)*time.Minute,
	)

	p := pipeline.New(store, transcriber, analyzer, cfg.RequestTimeoutDuration())

	// Create HTTP server
	mux := api.NewMux(api.NewUploadHandler(p, store.MaxBytes()), cfg.MaxUploadMB)

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness endpoint
	checks := []observability.NamedCheck{
		{Name: "deepgram", Check: transcriber.Ready},
		{Name: completer.Name(), Check: analyzer.Ready},
		{Name: "upload_dir", Check: func(context.Context) (bool, error) {
			if _, err := os.Stat(store.Dir()); err != nil {
				return false, err
			}
			return true, nil
		}},
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks...))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Uploads can take as long as the whole pipeline
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           api.Recover(mux),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       cfg.RequestTimeoutDuration(),
		WriteTimeout:      cfg.RequestTimeoutDuration() + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/upload", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return janitor.Run(ctx)
	})

	if cfg.GRPCHealthPort > 0 {
		grpcHealth := observability.NewGRPCHealthServer(checks...)
		g.Go(func() error {
			return grpcHealth.Serve(ctx, cfg.GRPCHealthPort, 10*time.Second)
		})
	}

	// Wait for interrupt signal (or a failed server) to gracefully shutdown
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("Server stopped with error")
	}

	logger.Info().Msg("Server exited gracefully")
}

// newCompleter selects the LLM backend named by INSIGHT_PROVIDER
func newCompleter(cfg *config.Config) (insight.Completer, error) {
	if cfg.InsightProvider == "openai" {
		opts := []insight.OpenAIOption{
			insight.WithHTTPClient(&http.Client{Timeout: cfg.AnalysisTimeoutDuration()}),
		}
		if cfg.InsightBaseURL != "" {
			opts = append(opts, insight.WithBaseURL(cfg.InsightBaseURL))
		}
		return insight.NewOpenAIClient(cfg.InsightAPIKey, cfg.InsightModel, cfg.InsightMaxTokens, opts...)
	}

	return insight.NewAnyLLMClient(
		cfg.InsightProvider,
		cfg.InsightModel,
		cfg.InsightMaxTokens,
		insight.AnyLLMOptions(cfg.InsightAPIKey, cfg.InsightBaseURL)...,
	)
}
