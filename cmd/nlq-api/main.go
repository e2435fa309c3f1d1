package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duckmesh/nlq/internal/api"
	"github.com/duckmesh/nlq/internal/app"
	"github.com/duckmesh/nlq/internal/config"
	"github.com/duckmesh/nlq/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("nlq-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	deps, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = deps.Close() }()

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:  logger,
		Queries: deps.Orchestrator,
		Schemas: deps.Schemas,
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabase(deps.DB),
			api.CheckSchema(deps.Schemas.Ready),
		),
		DependencyTimeout: time.Second,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("dialect", deps.Dialect.String()),
			slog.Int("tables", len(deps.Schemas.Current().Tables)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
