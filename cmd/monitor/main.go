package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"digefx-monitor-go/internal/api"
	"digefx-monitor-go/internal/config"
	"digefx-monitor-go/internal/logging"
	"digefx-monitor-go/internal/services/lifecycle"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg := config.Load()

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Optionally tee logs into the embedded Logdy web UI
	if cfg.LogdyEnabled {
		w, url, err := logging.StartLogdy(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Logdy unavailable, logging to stderr only")
		} else {
			log.Logger = log.Output(io.MultiWriter(zerolog.ConsoleWriter{Out: os.Stderr}, w))
			log.Info().Str("url", url).Msg("Log tee enabled")
		}
	}

	log.Info().
		Str("monitor_id", cfg.MonitorID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Msg("Starting DigEFX monitor")

	manager, err := lifecycle.Bootstrap(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap services")
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	if err := manager.Startup(startupCtx); err != nil {
		cancelStartup()
		log.Fatal().Err(err).Msg("Failed to start services")
	}
	cancelStartup()

	server := api.NewServer(cfg, manager)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	// Graceful shutdown: API first so no new control requests land while
	// the pipeline drains.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := manager.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Service shutdown incomplete")
	} else {
		log.Info().Msg("Shutdown complete")
	}
}
