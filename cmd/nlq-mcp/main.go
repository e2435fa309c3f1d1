package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/duckmesh/nlq/internal/app"
	"github.com/duckmesh/nlq/internal/config"
	"github.com/duckmesh/nlq/internal/mcpserver"
	"github.com/duckmesh/nlq/internal/observability"
)

var version = "dev"

func main() {
	cfg, err := config.LoadFromEnv("nlq-mcp")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// stdout carries the protocol.
	logger := observability.NewLogger(cfg, os.Stderr)
	deps, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = deps.Close() }()

	s, err := mcpserver.New(deps.Orchestrator, deps.Schemas, mcpserver.Options{
		Name:              "nlq",
		Version:           version,
		MaxQuestionLength: cfg.HTTP.QueryMaxLength,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("failed to initialize mcp server", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("serving mcp over stdio", slog.String("dialect", deps.Dialect.String()))
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp server stopped with error", slog.Any("error", err))
		_ = deps.Close()
		os.Exit(1)
	}
}
