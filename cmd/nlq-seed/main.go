package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/duckmesh/nlq/internal/app"
	"github.com/duckmesh/nlq/internal/config"
	"github.com/duckmesh/nlq/internal/demo/seed"
	"github.com/duckmesh/nlq/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("nlq-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	seedCfg, err := seed.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load seed config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := app.ObjectStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}
	seeder, err := seed.NewSeeder(store, seedCfg, logger)
	if err != nil {
		logger.Error("failed to initialize seeder", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("seeding demo orders",
		slog.String("bucket", cfg.ObjectStore.Bucket),
		slog.String("table", seedCfg.Table),
		slog.Int("files", seedCfg.Files),
		slog.Int("rows_per_file", seedCfg.RowsPer),
	)
	report, err := seeder.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("seeding finished",
		slog.Int("parts", len(report.Keys)),
		slog.Int("rows", report.Rows),
		slog.Int64("bytes", report.Bytes),
	)
}
