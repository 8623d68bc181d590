package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sinaabedii/arian-etc-sub001/internal/app"
	"github.com/sinaabedii/arian-etc-sub001/internal/config"
	"github.com/sinaabedii/arian-etc-sub001/pkg/logger"
)

func main() {
	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize structured logger. Development defaults to colored console output.
	format := cfg.LogFormat
	if cfg.IsDevelopment() && os.Getenv("LOG_FORMAT") == "" {
		format = logger.FormatConsole
	}
	log := logger.NewWithFormat("storefront-sync", cfg.LogLevel, format, os.Stdout)
	slog.SetDefault(log)
	log.Info("starting storefront sync service",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("storage", cfg.Storage),
		slog.String("backend_url", cfg.BackendURL),
	)

	// Create the application with all dependencies wired.
	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Create a context that is canceled on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Run the application. This blocks until shutdown.
	if err := application.Run(ctx); err != nil {
		log.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("storefront sync service stopped")
}
