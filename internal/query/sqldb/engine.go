package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/duckmesh/nlq/internal/observability"
	"github.com/duckmesh/nlq/internal/query"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Engine executes statements through database/sql for any supported dialect.
type Engine struct {
	db      *sql.DB
	dialect Dialect
}

func NewEngine(db *sql.DB, dialect Dialect) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if dialect.driverName() == "" {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	return &Engine{db: db, dialect: dialect}, nil
}

func (e *Engine) Dialect() Dialect {
	return e.dialect
}

// DB exposes the pool for readiness checks and schema introspection.
func (e *Engine) DB() *sql.DB {
	return e.db
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, &query.ExecutionError{Message: "sql is required"}
	}

	start := time.Now()
	result, err := e.execute(ctx, sqlText, request)
	elapsed := time.Since(start)
	if err != nil {
		outcome := "error"
		if execErr := query.AsExecutionError(err); execErr != nil && execErr.Timeout {
			outcome = "timeout"
		}
		observability.ObserveSQLExecution(outcome, false, elapsed)
		return query.Result{}, err
	}

	result.Duration = elapsed
	observability.ObserveSQLExecution("success", result.Truncated, elapsed)
	return result, nil
}

func (e *Engine) execute(parent context.Context, sqlText string, request query.Request) (query.Result, error) {
	ctx := parent
	if request.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, request.Timeout)
		defer cancel()
	}

	var runner queryer = e.db
	if e.dialect == DialectPostgres {
		tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return query.Result{}, translateError(ctx, request.Timeout, err)
		}
		// Reads only; nothing to commit.
		defer func() { _ = tx.Rollback() }()
		runner = tx
	}

	rows, err := runner.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, translateError(ctx, request.Timeout, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, translateError(ctx, request.Timeout, err)
	}

	result := query.Result{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		if request.MaxRows > 0 && len(result.Rows) >= request.MaxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, translateError(ctx, request.Timeout, err)
		}
		result.Rows = append(result.Rows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, translateError(ctx, request.Timeout, err)
	}
	return result, nil
}

// translateError turns a driver error into a query.ExecutionError carrying
// the dialect's error code, when it has one.
func translateError(ctx context.Context, timeout time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &query.ExecutionError{
			Message: fmt.Sprintf("statement timed out after %s", timeout),
			Timeout: true,
			Err:     err,
		}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return &query.ExecutionError{Message: "statement cancelled", Err: errors.Join(ctx.Err(), err)}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &query.ExecutionError{Message: pgErr.Message, Code: pgErr.Code, Err: err}
	}

	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		return &query.ExecutionError{Message: err.Error(), Code: strconv.Itoa(coded.Code()), Err: err}
	}

	return &query.ExecutionError{Message: err.Error(), Err: err}
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
