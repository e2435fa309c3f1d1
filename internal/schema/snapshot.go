// Package schema loads and caches the description of the queryable tables.
package schema

import (
	"strings"
	"time"
)

type ForeignKey struct {
	Table  string
	Column string
}

type Column struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
	// Default is the column default expression, empty when there is none.
	Default    string
	ForeignKey *ForeignKey
}

type Table struct {
	Name    string
	Columns []Column
}

// Snapshot is an immutable view of the schema at LoadedAt. Tables keep the
// order the loader produced.
type Snapshot struct {
	Tables   []Table
	LoadedAt time.Time
}

func (s Snapshot) Table(name string) (Table, bool) {
	for _, table := range s.Tables {
		if strings.EqualFold(table.Name, name) {
			return table, true
		}
	}
	return Table{}, false
}

func (s Snapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, table := range s.Tables {
		names = append(names, table.Name)
	}
	return names
}

// Filter keeps only the named tables. An empty allow-list keeps everything.
func (s Snapshot) Filter(allow []string) Snapshot {
	if len(allow) == 0 {
		return s
	}
	allowed := make(map[string]struct{}, len(allow))
	for _, name := range allow {
		allowed[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	filtered := Snapshot{LoadedAt: s.LoadedAt, Tables: make([]Table, 0, len(allow))}
	for _, table := range s.Tables {
		if _, ok := allowed[strings.ToLower(table.Name)]; ok {
			filtered.Tables = append(filtered.Tables, table)
		}
	}
	return filtered
}

type relationship struct {
	fromTable, fromColumn string
	to                    ForeignKey
}

func (s Snapshot) relationships() []relationship {
	var out []relationship
	for _, table := range s.Tables {
		for _, column := range table.Columns {
			if column.ForeignKey != nil {
				out = append(out, relationship{fromTable: table.Name, fromColumn: column.Name, to: *column.ForeignKey})
			}
		}
	}
	return out
}
