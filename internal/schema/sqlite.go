package schema

import (
	"context"
	"database/sql"
	"fmt"
)

const sqliteTablesQuery = `SELECT name FROM sqlite_master
WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
ORDER BY name`

const sqliteColumnsQuery = `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`

const sqliteForeignKeysQuery = `SELECT "from", "table", "to" FROM pragma_foreign_key_list(?)`

// SQLiteLoader introspects a SQLite database through sqlite_master and the
// table-valued pragma functions.
type SQLiteLoader struct {
	DB *sql.DB
}

func (l SQLiteLoader) Load(ctx context.Context) (Snapshot, error) {
	if l.DB == nil {
		return Snapshot{}, fmt.Errorf("db is required")
	}

	names, err := l.tableNames(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		columns, err := l.columns(ctx, name)
		if err != nil {
			return Snapshot{}, err
		}
		foreignKeys, err := l.foreignKeys(ctx, name)
		if err != nil {
			return Snapshot{}, err
		}
		for i := range columns {
			if fk, ok := foreignKeys[columns[i].Name]; ok {
				columns[i].ForeignKey = &fk
			}
		}
		tables = append(tables, Table{Name: name, Columns: columns})
	}
	return Snapshot{Tables: tables}, nil
}

func (l SQLiteLoader) tableNames(ctx context.Context) ([]string, error) {
	rows, err := l.DB.QueryContext(ctx, sqliteTablesQuery)
	if err != nil {
		return nil, fmt.Errorf("query sqlite tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan sqlite table: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sqlite tables: %w", err)
	}
	return names, nil
}

func (l SQLiteLoader) columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := l.DB.QueryContext(ctx, sqliteColumnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("query columns of %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]Column, 0)
	for rows.Next() {
		var (
			name, columnType string
			notNull, pk      int
			defaultValue     sql.NullString
		)
		if err := rows.Scan(&name, &columnType, &notNull, &defaultValue, &pk); err != nil {
			return nil, fmt.Errorf("scan column of %q: %w", table, err)
		}
		columns = append(columns, Column{
			Name:       name,
			Type:       columnType,
			Nullable:   notNull == 0 && pk == 0,
			PrimaryKey: pk > 0,
			Default:    defaultValue.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns of %q: %w", table, err)
	}
	return columns, nil
}

func (l SQLiteLoader) foreignKeys(ctx context.Context, table string) (map[string]ForeignKey, error) {
	rows, err := l.DB.QueryContext(ctx, sqliteForeignKeysQuery, table)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys of %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	keys := map[string]ForeignKey{}
	for rows.Next() {
		var from string
		var target ForeignKey
		var to sql.NullString
		if err := rows.Scan(&from, &target.Table, &to); err != nil {
			return nil, fmt.Errorf("scan foreign key of %q: %w", table, err)
		}
		// A NULL "to" references the parent's primary key.
		target.Column = to.String
		if target.Column == "" {
			target.Column = "rowid"
		}
		if _, exists := keys[from]; !exists {
			keys[from] = target
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys of %q: %w", table, err)
	}
	return keys, nil
}
