package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"gravl/internal/cli"
	apphttp "gravl/internal/http"
	"gravl/internal/log"
)

func main() {
	cli.LoadEnvFile()

	boot := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, log.ComponentApp)

	ctx := context.Background()
	result := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := result.Close(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	caches, err := cli.InitCaches(ctx, logger, cfg)
	if err != nil {
		logger.Warn("Falling back to in-process cache", log.FieldError, err)
		cfg.CacheBackend = "memory"
		caches, _ = cli.InitCaches(ctx, logger, cfg)
	}
	defer caches.Close()

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		Runs:           result.Backend,
		Companies:      result.Backend,
		RunCache:       caches.Runs,
		CompanyCache:   caches.Companies,
		Ready:          result.Ping,
		RateLimitRPM:   cfg.RateLimitRPM,
		TrustedProxies: cfg.TrustedProxies,
		Logger:         logger.WithComponent(log.ComponentHTTP),
	})
	if err != nil {
		logger.Error("Failed to configure server", log.FieldError, err)
		os.Exit(1)
	}

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	// Imports announced on the broker drop the stale resident records.
	if result.Notifier != nil {
		go func() {
			err := result.Notifier.ConsumeDatasetRefresh(shutdownCtx, srv.HandleDatasetRefresh)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Dataset refresh consumer stopped", log.FieldError, err, log.FieldComponent, log.ComponentAMQP)
			}
		}()
	}

	logger.Info("Starting gravl server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		"cache", cfg.CacheBackend,
		"amqp", result.Notifier != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
