package sqlguard

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// checkPostgresTree parses the statement with the PostgreSQL parser and
// admits only plain SELECT trees.
func checkPostgresTree(sqlText string) error {
	result, err := pg_query.Parse(sqlText)
	if err != nil {
		return reject("parse: %v", err)
	}
	if len(result.Stmts) != 1 {
		return reject("expected exactly one statement, got %d", len(result.Stmts))
	}
	sel := result.Stmts[0].Stmt.GetSelectStmt()
	if sel == nil {
		return reject("only SELECT statements are allowed")
	}
	return checkSelect(sel)
}

func checkSelect(sel *pg_query.SelectStmt) error {
	if sel == nil {
		return nil
	}
	if sel.IntoClause != nil {
		return reject("SELECT INTO is not allowed")
	}
	if len(sel.LockingClause) > 0 {
		return reject("locking clauses are not allowed")
	}
	if sel.WithClause != nil {
		for _, cte := range sel.WithClause.Ctes {
			expr := cte.GetCommonTableExpr()
			if expr == nil {
				continue
			}
			inner := expr.Ctequery.GetSelectStmt()
			if inner == nil {
				return reject("common table expression %q is not a SELECT", expr.Ctename)
			}
			if err := checkSelect(inner); err != nil {
				return err
			}
		}
	}
	if err := checkSelect(sel.Larg); err != nil {
		return err
	}
	return checkSelect(sel.Rarg)
}
