package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

type DBConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Open connects to the database named by cfg.URL and verifies it with a ping.
func Open(ctx context.Context, cfg DBConfig) (*sql.DB, Dialect, error) {
	dialect, dsn, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s db: %w", dialect, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping %s db: %w", dialect, err)
	}

	return db, dialect, nil
}
