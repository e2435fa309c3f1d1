package schema

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const columnsQuery = `SELECT table_name, column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`

const primaryKeysQuery = `SELECT kcu.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1`

const foreignKeysQuery = `SELECT kcu.table_name, kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1`

// InformationSchemaLoader introspects databases that expose the standard
// information_schema views (PostgreSQL, DuckDB).
type InformationSchemaLoader struct {
	DB     *sql.DB
	Schema string
	// Constraints enables the primary and foreign key lookups.
	Constraints bool
}

type columnKey struct {
	table, column string
}

func (l InformationSchemaLoader) Load(ctx context.Context) (Snapshot, error) {
	if l.DB == nil {
		return Snapshot{}, fmt.Errorf("db is required")
	}
	schemaName := l.Schema
	if schemaName == "" {
		schemaName = "public"
	}

	var (
		tables      []Table
		primaryKeys map[columnKey]bool
		foreignKeys map[columnKey]ForeignKey
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		loaded, err := l.loadColumns(groupCtx, schemaName)
		tables = loaded
		return err
	})
	if l.Constraints {
		group.Go(func() error {
			loaded, err := l.loadPrimaryKeys(groupCtx, schemaName)
			primaryKeys = loaded
			return err
		})
		group.Go(func() error {
			loaded, err := l.loadForeignKeys(groupCtx, schemaName)
			foreignKeys = loaded
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return Snapshot{}, err
	}

	for ti := range tables {
		for ci := range tables[ti].Columns {
			key := columnKey{table: tables[ti].Name, column: tables[ti].Columns[ci].Name}
			if primaryKeys[key] {
				tables[ti].Columns[ci].PrimaryKey = true
			}
			if fk, ok := foreignKeys[key]; ok {
				tables[ti].Columns[ci].ForeignKey = &fk
			}
		}
	}
	return Snapshot{Tables: tables}, nil
}

func (l InformationSchemaLoader) loadColumns(ctx context.Context, schemaName string) ([]Table, error) {
	rows, err := l.DB.QueryContext(ctx, columnsQuery, schemaName)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]Table, 0)
	for rows.Next() {
		var (
			tableName, columnName, dataType, nullable string
			columnDefault                             sql.NullString
		)
		if err := rows.Scan(&tableName, &columnName, &dataType, &nullable, &columnDefault); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		if len(tables) == 0 || tables[len(tables)-1].Name != tableName {
			tables = append(tables, Table{Name: tableName})
		}
		current := &tables[len(tables)-1]
		current.Columns = append(current.Columns, Column{
			Name:     columnName,
			Type:     dataType,
			Nullable: nullable == "YES",
			Default:  columnDefault.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return tables, nil
}

func (l InformationSchemaLoader) loadPrimaryKeys(ctx context.Context, schemaName string) (map[columnKey]bool, error) {
	rows, err := l.DB.QueryContext(ctx, primaryKeysQuery, schemaName)
	if err != nil {
		return nil, fmt.Errorf("query primary keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := map[columnKey]bool{}
	for rows.Next() {
		var key columnKey
		if err := rows.Scan(&key.table, &key.column); err != nil {
			return nil, fmt.Errorf("scan primary key: %w", err)
		}
		keys[key] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate primary keys: %w", err)
	}
	return keys, nil
}

func (l InformationSchemaLoader) loadForeignKeys(ctx context.Context, schemaName string) (map[columnKey]ForeignKey, error) {
	rows, err := l.DB.QueryContext(ctx, foreignKeysQuery, schemaName)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := map[columnKey]ForeignKey{}
	for rows.Next() {
		var (
			key    columnKey
			target ForeignKey
		)
		if err := rows.Scan(&key.table, &key.column, &target.Table, &target.Column); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		// One reference per column is enough for prompts.
		if _, exists := keys[key]; !exists {
			keys[key] = target
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}
	return keys, nil
}
