package seed

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/duckmesh/nlq/internal/storage"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	Table     string
	Files     int
	RowsPer   int
	Customers int
	Start     time.Time
	Days      int
	Seed      int64
}

func DefaultConfig() Config {
	return Config{
		Table:     "orders",
		Files:     4,
		RowsPer:   500,
		Customers: 200,
		Start:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:      365,
		Seed:      time.Now().UTC().UnixNano(),
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "NLQ_SEED_TABLE", &cfg.Table); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "NLQ_SEED_FILES", &cfg.Files); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "NLQ_SEED_ROWS_PER_FILE", &cfg.RowsPer); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "NLQ_SEED_CUSTOMERS", &cfg.Customers); err != nil {
		return Config{}, err
	}
	if err := applyDate(lookup, "NLQ_SEED_START_DATE", &cfg.Start); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "NLQ_SEED_DAYS", &cfg.Days); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "NLQ_SEED_RANDOM_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}

	if err := storage.ValidateTableName(cfg.Table); err != nil {
		return Config{}, fmt.Errorf("NLQ_SEED_TABLE: %w", err)
	}
	if cfg.Files <= 0 {
		return Config{}, fmt.Errorf("NLQ_SEED_FILES must be > 0")
	}
	if cfg.RowsPer <= 0 {
		return Config{}, fmt.Errorf("NLQ_SEED_ROWS_PER_FILE must be > 0")
	}
	if cfg.Customers <= 0 {
		return Config{}, fmt.Errorf("NLQ_SEED_CUSTOMERS must be > 0")
	}
	if cfg.Days <= 0 {
		return Config{}, fmt.Errorf("NLQ_SEED_DAYS must be > 0")
	}
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyDate(lookup LookupFunc, key string, dst *time.Time) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v.UTC()
	return nil
}
