// Package main is the entry point for the jokebox API server.
//
// main stays small: load config, build the logger and the text generator,
// then hand everything to internal/server. It exits non-zero on any startup
// error and returns cleanly after SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sakif/jokebox/internal/config"
	"github.com/sakif/jokebox/internal/llm"
	"github.com/sakif/jokebox/internal/repository/sqlstore"
	"github.com/sakif/jokebox/internal/server"
)

func main() {
	// === 1. CONFIGURATION ===
	// Defaults, then .env if present, then the real environment.
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. LOGGING ===
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	// === 3. DATA DIRECTORY ===
	// SQLite won't create missing parent directories.
	if err := sqlstore.EnsureDir(cfg.DatabaseURL); err != nil {
		logger.Error("failed to create database directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 4. RUN ===
	// The context is cancelled on Ctrl+C or SIGTERM, which starts the
	// graceful shutdown inside Run.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen := llm.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, logger)

	srv, err := server.New(ctx, cfg, logger, gen)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
