package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/duckmesh/nlq/internal/storage"
)

// Lake exposes parquet objects from an object store as DuckDB views, one view
// per top-level table directory.
type Lake struct {
	Store   storage.ObjectStore
	DB      *sql.DB
	WorkDir string

	mu      sync.Mutex
	current string
	retired string
	views   map[string]struct{}
}

type SyncReport struct {
	Tables []string
	Files  int
	Bytes  int64
}

func NewLake(store storage.ObjectStore, db *sql.DB, workDir string) (*Lake, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if db == nil {
		return nil, fmt.Errorf("duckdb handle is required")
	}
	return &Lake{Store: store, DB: db, WorkDir: workDir, views: map[string]struct{}{}}, nil
}

// Sync downloads the current parquet objects into a fresh generation
// directory and repoints every view at it. Views whose table disappeared from
// the store are dropped. The view changes commit together: when any of them
// fails, the views keep reading the previous generation.
//
// The replaced generation stays on disk until the next successful sync so
// queries that started against it can finish.
func (l *Lake) Sync(ctx context.Context) (SyncReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	objects, err := l.Store.List(ctx, "")
	if err != nil {
		return SyncReport{}, fmt.Errorf("list lake objects: %w", err)
	}
	grouped, err := storage.TableFiles(objects)
	if err != nil {
		return SyncReport{}, fmt.Errorf("group lake objects: %w", err)
	}

	if l.WorkDir != "" {
		if err := os.MkdirAll(l.WorkDir, 0o755); err != nil {
			return SyncReport{}, fmt.Errorf("create lake work dir: %w", err)
		}
	}
	generation, err := os.MkdirTemp(l.WorkDir, "nlq-lake-")
	if err != nil {
		return SyncReport{}, fmt.Errorf("create lake generation dir: %w", err)
	}

	report, localPaths, err := l.download(ctx, generation, grouped)
	if err != nil {
		_ = os.RemoveAll(generation)
		return SyncReport{}, err
	}

	views, err := l.swapViews(ctx, report.Tables, localPaths)
	if err != nil {
		_ = os.RemoveAll(generation)
		return SyncReport{}, err
	}

	if l.retired != "" {
		_ = os.RemoveAll(l.retired)
	}
	l.retired = l.current
	l.current = generation
	l.views = views
	return report, nil
}

// swapViews points every table at its new files and drops views for tables
// that are gone, all in one transaction.
func (l *Lake) swapViews(ctx context.Context, tables []string, localPaths map[string][]string) (map[string]struct{}, error) {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin view transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	views := make(map[string]struct{}, len(tables))
	for _, tableName := range tables {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(tableName), quoteStringArray(localPaths[tableName]))
		if _, err := tx.ExecContext(ctx, viewSQL); err != nil {
			return nil, fmt.Errorf("create view for table %q: %w", tableName, err)
		}
		views[tableName] = struct{}{}
	}
	for tableName := range l.views {
		if _, ok := views[tableName]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP VIEW IF EXISTS %s`, quoteIdent(tableName))); err != nil {
			return nil, fmt.Errorf("drop view for table %q: %w", tableName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit view transaction: %w", err)
	}
	return views, nil
}

func (l *Lake) download(ctx context.Context, dir string, grouped map[string][]storage.ObjectInfo) (SyncReport, map[string][]string, error) {
	report := SyncReport{Tables: make([]string, 0, len(grouped))}
	for tableName := range grouped {
		report.Tables = append(report.Tables, tableName)
	}
	sort.Strings(report.Tables)

	localPaths := make(map[string][]string, len(grouped))
	for _, tableName := range report.Tables {
		for index, object := range grouped[tableName] {
			reader, err := l.Store.Get(ctx, object.Key)
			if err != nil {
				return SyncReport{}, nil, fmt.Errorf("get object %q: %w", object.Key, err)
			}

			localPath := filepath.Join(dir, fmt.Sprintf("%s_%d%s", sanitizeFileComponent(tableName), index, path.Ext(object.Key)))
			if err := writeFile(localPath, reader); err != nil {
				_ = reader.Close()
				return SyncReport{}, nil, fmt.Errorf("write local parquet file %q: %w", localPath, err)
			}
			if err := reader.Close(); err != nil {
				return SyncReport{}, nil, fmt.Errorf("close object %q: %w", object.Key, err)
			}

			localPaths[tableName] = append(localPaths[tableName], localPath)
			report.Files++
			report.Bytes += object.Size
		}
	}
	return report, localPaths, nil
}

// Close removes the downloaded files. Views left in the database point at
// files that no longer exist.
func (l *Lake) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, dir := range []string{l.retired, l.current} {
		if dir == "" {
			continue
		}
		if err := os.RemoveAll(dir); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.retired = ""
	l.current = ""
	return firstErr
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}
