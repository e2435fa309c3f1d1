package schema

import (
	"strings"
)

// Render formats a snapshot as the plain-text schema block embedded in
// prompts.
func Render(snapshot Snapshot) string {
	var b strings.Builder
	b.WriteString("Database Schema:\n\nTables:\n")
	for _, table := range snapshot.Tables {
		b.WriteString("- ")
		b.WriteString(table.Name)
		b.WriteString(":\n")
		for _, column := range table.Columns {
			b.WriteString("  - ")
			b.WriteString(column.Name)
			b.WriteString(" (")
			b.WriteString(column.Type)
			if column.PrimaryKey {
				b.WriteString(", PK")
			}
			if !column.Nullable {
				b.WriteString(", NOT NULL")
			}
			if column.Default != "" {
				b.WriteString(", DEFAULT ")
				b.WriteString(column.Default)
			}
			if column.ForeignKey != nil {
				b.WriteString(", FK -> ")
				b.WriteString(column.ForeignKey.Table)
				b.WriteString(".")
				b.WriteString(column.ForeignKey.Column)
			}
			b.WriteString(")\n")
		}
	}
	b.WriteString("\n")

	if relationships := snapshot.relationships(); len(relationships) > 0 {
		b.WriteString("Relationships (Foreign Keys):\n")
		for _, rel := range relationships {
			b.WriteString("- ")
			b.WriteString(rel.fromTable + "." + rel.fromColumn)
			b.WriteString(" -> ")
			b.WriteString(rel.to.Table + "." + rel.to.Column)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("---")
	return b.String()
}
