// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/gravl and cmd/gravlctl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gravl/internal/backend"
	"gravl/internal/cache"
	"gravl/internal/config"
	"gravl/internal/core"
	"gravl/internal/log"
)

// SetupLogger initializes structured logging on stdout at the given level
// and format, and makes it the default logger.
func SetupLogger(level, format, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(level),
		Component: component,
		Format:    format,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err, log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}
	return cfg
}

// InitBackend opens the record store selected by DATA_BACKEND.
// Returns the backend or exits the process on failure.
func InitBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend)).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	return result
}

// Caches holds the resident record caches selected by CACHE_BACKEND.
type Caches struct {
	Runs      cache.Cache[[]core.Run]
	Companies cache.Cache[[]core.Company]
	Close     func() error
}

// InitCaches builds the resident record caches. The redis backend shares
// one connection between both caches.
func InitCaches(ctx context.Context, logger *log.Logger, cfg *config.Config) (*Caches, error) {
	switch cfg.CacheBackend {
	case "redis":
		client, err := cache.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		cacheLogger := logger.WithComponent(log.ComponentCache)
		logger.Info("Redis cache connected", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL.String())
		return &Caches{
			Runs:      cache.NewRedisCache[[]core.Run](client, "gravl:", cfg.CacheTTL, cacheLogger),
			Companies: cache.NewRedisCache[[]core.Company](client, "gravl:", cfg.CacheTTL, cacheLogger),
			Close:     client.Close,
		}, nil
	default:
		return &Caches{
			Runs:      cache.NewLRUCache[[]core.Run](cfg.CacheSize, cfg.CacheTTL),
			Companies: cache.NewLRUCache[[]core.Company](cfg.CacheSize, cfg.CacheTTL),
			Close:     func() error { return nil },
		}, nil
	}
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached", log.FieldOperation, log.OpShutdown, log.FieldErrorType, log.ErrorTypeTimeout)
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
