// Package main is the entry point for the llmgate gateway server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/llmgate/llmgate/internal/api"
	"github.com/llmgate/llmgate/internal/config"
	"github.com/llmgate/llmgate/internal/gateway"
	"github.com/llmgate/llmgate/internal/idempotency"
	"github.com/llmgate/llmgate/internal/metrics"
	"github.com/llmgate/llmgate/internal/observability"
	"github.com/llmgate/llmgate/internal/resilience"
	"github.com/llmgate/llmgate/pkg/provider"
	"github.com/llmgate/llmgate/providers/anthropic"
	"github.com/llmgate/llmgate/providers/openai"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML configuration file")
	flag.Parse()

	cfg, cfgManager, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:      observability.ParseLevel(cfg.Logging.Level),
		Output:     os.Stdout,
		JSONFormat: cfg.Logging.Format != "text",
	})

	logger.Info("starting llmgate gateway", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		logger.Error("failed to register providers", "error", err)
		os.Exit(1)
	}

	orch := gateway.New(registry, gateway.Config{
		DefaultProvider: cfg.Providers.Default,
		Retry: resilience.RetryConfig{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
		},
		Breaker: resilience.BreakerConfig{
			ErrorThresholdPercentage: cfg.Circuit.ErrorThresholdPercentage,
			ResetTimeout:             cfg.Circuit.ResetTimeout,
			CallTimeout:              cfg.Circuit.CallTimeout,
		},
		Logger: logger,
	})

	store := idempotency.NewStore(cfg.Idempotency.TTL)
	limiter := resilience.NewFixedWindowLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)

	if cfgManager != nil {
		cfgManager.OnChange(func(next *config.Config) {
			limiter.SetLimits(next.RateLimit.MaxRequests, next.RateLimit.Window)
			orch.SetRetryConfig(resilience.RetryConfig{
				MaxAttempts:  next.Retry.MaxAttempts,
				InitialDelay: next.Retry.InitialDelay,
				MaxDelay:     next.Retry.MaxDelay,
			})
			logger.Info("applied reloaded tunables",
				"rate_limit_max", next.RateLimit.MaxRequests,
				"rate_limit_window", next.RateLimit.Window,
				"retry_max_attempts", next.Retry.MaxAttempts)
		})
		if err := cfgManager.Watch(ctx); err != nil {
			logger.Warn("config hot-reload disabled", "error", err)
		}
		defer cfgManager.Close()
	}

	handler := api.NewHandler(orch, store, logger)
	mux := api.NewServeMux(handler, limiter, logger)

	var httpHandler http.Handler = mux
	httpHandler = api.RecoveryMiddleware(logger)(httpHandler)
	httpHandler = metrics.Middleware(httpHandler)
	httpHandler = observability.RequestIDMiddleware(httpHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

// loadConfig resolves configuration: a YAML file with hot reload when a
// path is given, environment variables otherwise.
func loadConfig(path string) (*config.Config, *config.Manager, error) {
	if path == "" {
		cfg, err := config.LoadFromEnv()
		return cfg, nil, err
	}

	bootLogger := observability.NewLogger(observability.LoggerConfig{
		Output:     os.Stdout,
		JSONFormat: true,
	})
	manager, err := config.NewManager(path, bootLogger.Slog())
	if err != nil {
		return nil, nil, err
	}
	return manager.Get(), manager, nil
}

// buildRegistry registers every provider with a configured API key.
func buildRegistry(cfg *config.Config, logger *observability.Logger) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	if cfg.Providers.OpenAIAPIKey != "" {
		p := openai.New(
			openai.WithAPIKey(cfg.Providers.OpenAIAPIKey),
			openai.WithBaseURL(cfg.Providers.OpenAIBaseURL),
		)
		if err := registry.Register(p); err != nil {
			return nil, err
		}
		logger.Info("provider registered", "name", p.Name())
	}

	if cfg.Providers.AnthropicAPIKey != "" {
		p := anthropic.New(
			anthropic.WithAPIKey(cfg.Providers.AnthropicAPIKey),
			anthropic.WithBaseURL(cfg.Providers.AnthropicBaseURL),
		)
		if err := registry.Register(p); err != nil {
			return nil, err
		}
		logger.Info("provider registered", "name", p.Name())
	}

	if len(registry.List()) == 0 {
		logger.Warn("no provider API keys configured; chat completions will fail")
	}

	return registry, nil
}
