package sqldb

import (
	"fmt"
	"net/url"
	"strings"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
	DialectDuckDB   Dialect = "duckdb"
)

func (d Dialect) String() string {
	return string(d)
}

// driverName is the database/sql driver registered for the dialect.
func (d Dialect) driverName() string {
	switch d {
	case DialectPostgres:
		return "pgx"
	case DialectSQLite:
		return "sqlite"
	case DialectDuckDB:
		return "duckdb"
	default:
		return ""
	}
}

// ParseURL resolves the dialect of a DATABASE_URL and the DSN its driver
// expects. SQLite databases are always opened read-only.
func ParseURL(raw string) (Dialect, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("database url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse database url: %w", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return DialectPostgres, raw, nil
	case "sqlite", "sqlite3":
		path := filePath(parsed)
		if path == "" {
			return "", "", fmt.Errorf("sqlite database url requires a file path")
		}
		query := parsed.Query()
		query.Set("mode", "ro")
		return DialectSQLite, "file:" + path + "?" + query.Encode(), nil
	case "duckdb":
		// An empty path opens an in-memory database.
		path := filePath(parsed)
		if encoded := parsed.RawQuery; encoded != "" && path != "" {
			path += "?" + encoded
		}
		return DialectDuckDB, path, nil
	default:
		return "", "", fmt.Errorf("unsupported database scheme %q", parsed.Scheme)
	}
}

func filePath(parsed *url.URL) string {
	return strings.TrimSpace(parsed.Host + parsed.Path)
}
