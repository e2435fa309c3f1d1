package sqlguard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAcceptsReadOnlyQueries(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		dialect string
		want    string
	}{
		{name: "plain select", input: "SELECT id FROM orders", dialect: DialectSQLite, want: "SELECT id FROM orders"},
		{name: "trailing semicolons", input: "SELECT 1;;  ", dialect: DialectSQLite, want: "SELECT 1"},
		{name: "markdown fence", input: "```sql\nSELECT name FROM customers;\n```", dialect: DialectDuckDB, want: "SELECT name FROM customers"},
		{name: "cte", input: "WITH t AS (SELECT 1 AS x) SELECT x FROM t", dialect: DialectPostgres, want: "WITH t AS (SELECT 1 AS x) SELECT x FROM t"},
		{name: "keywords in literals", input: "SELECT 'drop table; delete' AS note, \"update\" FROM logs", dialect: DialectSQLite, want: "SELECT 'drop table; delete' AS note, \"update\" FROM logs"},
		{name: "column names containing keywords", input: "SELECT created_at, updated_by FROM orders", dialect: DialectPostgres, want: "SELECT created_at, updated_by FROM orders"},
		{name: "leading comment", input: "-- totals\nSELECT SUM(total) FROM orders", dialect: DialectPostgres, want: "-- totals\nSELECT SUM(total) FROM orders"},
		{name: "union", input: "SELECT id FROM a UNION SELECT id FROM b", dialect: DialectPostgres, want: "SELECT id FROM a UNION SELECT id FROM b"},
		{name: "parenthesized", input: "(SELECT 1)", dialect: DialectSQLite, want: "(SELECT 1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Check(tt.input, tt.dialect)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckRejectsWritesAndMultipleStatements(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		dialect string
	}{
		{name: "empty", input: "   ", dialect: DialectSQLite},
		{name: "only fence", input: "```sql\n```", dialect: DialectSQLite},
		{name: "delete", input: "DELETE FROM orders", dialect: DialectSQLite},
		{name: "drop", input: "DROP TABLE orders", dialect: DialectDuckDB},
		{name: "piggy-backed", input: "SELECT 1; DROP TABLE orders", dialect: DialectSQLite},
		{name: "data modifying cte", input: "WITH gone AS (DELETE FROM orders RETURNING *) SELECT * FROM gone", dialect: DialectSQLite},
		{name: "select into", input: "SELECT * INTO backup FROM orders", dialect: DialectDuckDB},
		{name: "for update", input: "SELECT * FROM orders FOR UPDATE", dialect: DialectPostgres},
		{name: "unterminated literal", input: "SELECT 'oops FROM orders", dialect: DialectSQLite},
		{name: "unterminated comment", input: "SELECT 1 /* trailing", dialect: DialectSQLite},
		{name: "pragma", input: "PRAGMA table_info(orders)", dialect: DialectSQLite},
		{name: "duckdb file read", input: "SELECT * FROM read_csv_auto('/etc/passwd')", dialect: DialectDuckDB},
		{name: "postgres parse error", input: "SELECT FROM WHERE (", dialect: DialectPostgres},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Check(tt.input, tt.dialect)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRejected))

			var rejection *RejectionError
			require.ErrorAs(t, err, &rejection)
			assert.NotEmpty(t, rejection.Reason)
		})
	}
}

func TestCheckPostgresRejectsLockingClauseWithoutKeywordHit(t *testing.T) {
	err := checkPostgresTree("SELECT * FROM orders FOR SHARE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locking")
}

func TestCheckDuckDBRejectsFileReferences(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "string relation", input: "SELECT * FROM '/etc/passwd.csv'"},
		{name: "string relation without extension", input: "SELECT * FROM '/etc/passwd'"},
		{name: "quoted file identifier", input: `SELECT * FROM "data/orders.parquet"`},
		{name: "join", input: "SELECT * FROM orders o JOIN 's3://bucket/x.parquet' x ON o.id = x.id"},
		{name: "comma join", input: "SELECT * FROM orders, '/tmp/secrets.json'"},
		{name: "after subquery", input: "SELECT * FROM (SELECT 1 AS a) t, '/tmp/x.csv'"},
		{name: "inside cte", input: "WITH f AS (SELECT * FROM '/tmp/x.csv') SELECT * FROM f"},
		{name: "from first subquery", input: "SELECT * FROM (FROM '/tmp/x.csv')"},
		{name: "hidden behind comment", input: "SELECT * FROM /* orders */ '/tmp/x.csv'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Check(tt.input, DialectDuckDB)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRejected))
			assert.Contains(t, err.Error(), "file reference")
		})
	}
}

func TestCheckDuckDBAllowsQuotedNamesAndLiterals(t *testing.T) {
	inputs := []string{
		`SELECT * FROM "orders"`,
		`SELECT * FROM "main"."orders"`,
		"SELECT 'a.csv', 'b' FROM orders",
		"SELECT * FROM orders WHERE region IN ('a.b', 'c/d')",
		"SELECT EXTRACT(YEAR FROM '2024-01-01'::DATE) AS y FROM orders",
		"SELECT * FROM orders o JOIN customers c ON o.customer_id = c.id WHERE c.name = 'x.y'",
	}
	for _, input := range inputs {
		got, err := Check(input, DialectDuckDB)
		require.NoError(t, err, input)
		assert.Equal(t, input, got)
	}
}

func TestCheckFileReferencesOnlyMatterForDuckDB(t *testing.T) {
	_, err := Check(`SELECT * FROM "weird.name"`, DialectSQLite)
	require.NoError(t, err)
}

func TestCheckDuckDBFunctionsAllowedElsewhere(t *testing.T) {
	_, err := Check("SELECT glob('a*', name) FROM files", DialectSQLite)
	require.NoError(t, err)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "SELECT 1", Normalize("```\nSELECT 1;\n```"))
	assert.Equal(t, "SELECT 1", Normalize("  SELECT 1 ; ; "))
	assert.Equal(t, "", Normalize(";"))
}
