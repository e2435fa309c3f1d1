package seed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/duckmesh/nlq/internal/storage"
)

type Report struct {
	Keys  []string
	Rows  int
	Bytes int64
}

// Seeder uploads generated orders as parquet parts under "<table>/", the
// layout the DuckDB lake turns into one view per table.
type Seeder struct {
	writer storage.ObjectWriter
	cfg    Config
	log    *slog.Logger
}

func NewSeeder(writer storage.ObjectWriter, cfg Config, logger *slog.Logger) (*Seeder, error) {
	if writer == nil {
		return nil, fmt.Errorf("object writer is required")
	}
	if err := storage.ValidateTableName(cfg.Table); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Seeder{writer: writer, cfg: cfg, log: logger}, nil
}

func (s *Seeder) Run(ctx context.Context) (Report, error) {
	generator := NewGenerator(s.cfg.Seed, s.cfg.Customers, s.cfg.Start, s.cfg.Days)
	var report Report
	for part := 1; part <= s.cfg.Files; part++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		orders := generator.Batch(s.cfg.RowsPer)
		payload, err := EncodeOrders(orders)
		if err != nil {
			return report, err
		}

		key := fmt.Sprintf("%s/part-%05d.parquet", s.cfg.Table, part)
		info, err := s.writer.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: parquetContentType})
		if err != nil {
			return report, fmt.Errorf("upload %s: %w", key, err)
		}
		report.Keys = append(report.Keys, key)
		report.Rows += len(orders)
		report.Bytes += int64(len(payload))
		s.log.Info("uploaded parquet part",
			slog.String("key", key),
			slog.Int("rows", len(orders)),
			slog.Int64("bytes", info.Size),
		)
	}
	return report, nil
}
