package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/duckmesh/nlq/internal/observability"
	"github.com/duckmesh/nlq/internal/query"
	"github.com/duckmesh/nlq/internal/sqlguard"
)

// CycleResult is the last attempt of a generate, execute, correct cycle and
// its outcome. Err is set only when the cycle ended without an outcome: the
// synthesis call failed, or the request context is done.
type CycleResult struct {
	Attempt    SQLAttempt
	Outcome    Outcome
	Executions int
	Err        *Error
}

type CorrectionCycle struct {
	synthesizer    *SQLSynthesizer
	corrector      *ErrorCorrector
	engine         query.Engine
	dialect        string
	maxCorrections int
	maxRows        int
	sqlTimeout     time.Duration
	logger         *slog.Logger
	sqlLogMax      int
}

// Run synthesizes one statement and corrects it at most maxCorrections
// times. The engine is called at most maxCorrections+1 times.
func (c *CorrectionCycle) Run(ctx context.Context, q Query, schemaText string, ledger Ledger) CycleResult {
	if err := ctx.Err(); err != nil {
		return CycleResult{Err: contextError("sql_synthesis", err)}
	}
	statement, err := c.synthesizer.Generate(ctx, q.Text, schemaText, ledger)
	if err != nil {
		return CycleResult{Err: synthesisFailure(ctx, err)}
	}

	result := CycleResult{Attempt: SQLAttempt{SQL: statement, Stage: StageSynthesis, Index: 0}}
	outcome, abort := c.execute(ctx, q, result.Attempt, &result.Executions)
	if abort != nil {
		result.Err = abort
		return result
	}
	result.Outcome = outcome

	// The corrector always sees the last statement that actually failed on
	// its own, not a correction that never produced SQL.
	lastStatement, lastFailure := result.Attempt, outcome
	for !result.Outcome.Success && result.Attempt.Index < c.maxCorrections {
		if err := ctx.Err(); err != nil {
			result.Err = contextError("sql_correction", err)
			return result
		}
		index := result.Attempt.Index + 1

		corrected, err := c.corrector.Correct(ctx, q.Text, schemaText, lastStatement, lastFailure)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				result.Err = contextError("sql_correction", ctxErr)
				return result
			}
			observability.IncrementCorrectionAttempt("corrector_error")
			result.Attempt = SQLAttempt{SQL: lastStatement.SQL, Stage: StageCorrection, Index: index}
			result.Outcome = failureOutcome("correction failed: "+err.Error(), CodeCorrectionFailed)
			continue
		}

		result.Attempt = SQLAttempt{SQL: corrected, Stage: StageCorrection, Index: index}
		outcome, abort := c.execute(ctx, q, result.Attempt, &result.Executions)
		if abort != nil {
			result.Err = abort
			return result
		}
		result.Outcome = outcome
		if outcome.Success {
			observability.IncrementCorrectionAttempt("success")
		} else {
			observability.IncrementCorrectionAttempt("failure")
			lastStatement, lastFailure = result.Attempt, outcome
		}
	}
	return result
}

// execute runs one attempt through the read-only guard and the engine. A
// guard rejection is a Failure outcome without an engine call.
func (c *CorrectionCycle) execute(ctx context.Context, q Query, attempt SQLAttempt, executions *int) (Outcome, *Error) {
	logger := c.logger.With(
		slog.String("request_id", q.ID),
		slog.String("stage", string(attempt.Stage)),
		slog.Int("attempt", attempt.Index),
	)

	checked, err := sqlguard.Check(attempt.SQL, c.dialect)
	if err != nil {
		logger.Warn("statement rejected",
			slog.String("sql", observability.Truncate(attempt.SQL, c.sqlLogMax)),
			slog.Any("error", err),
		)
		return failureOutcome(err.Error(), CodeRejected), nil
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, contextError("sql_execution", err)
	}

	*executions++
	logger.Debug("executing statement", slog.String("sql", observability.Truncate(checked, c.sqlLogMax)))
	result, err := c.engine.Execute(ctx, query.Request{SQL: checked, MaxRows: c.maxRows, Timeout: c.sqlTimeout})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, contextError("sql_execution", ctxErr)
		}
		outcome := executionFailure(err)
		logger.Info("statement failed",
			slog.String("error_code", outcome.ErrorCode),
			slog.Bool("timeout", outcome.Timeout),
			slog.String("error", observability.Truncate(outcome.ErrorMessage, c.sqlLogMax)),
		)
		return outcome, nil
	}

	logger.Debug("statement succeeded",
		slog.Int("rows", len(result.Rows)),
		slog.Bool("truncated", result.Truncated),
	)
	return successOutcome(result), nil
}

func synthesisFailure(ctx context.Context, err error) *Error {
	classified := modelFailure(ctx, "sql_synthesis", SQLSynthesisUnavailable, err)
	if classified.Kind == KindLanguageModelFailure {
		classified.Kind = KindSQLSynthesisFailure
	}
	return classified
}
