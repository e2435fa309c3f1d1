package orchestrator

import (
	"context"
	"log/slog"

	"github.com/duckmesh/nlq/internal/observability"
)

type StopReason string

const (
	StopComplete   StopReason = "complete"
	StopRoundLimit StopReason = "round_limit"
	StopAllFailed  StopReason = "all_failed"
	StopAborted    StopReason = "aborted"
)

type InsightIterator struct {
	cycle     *CorrectionCycle
	responder *ResponseSynthesizer
	maxRounds int
	logger    *slog.Logger
}

// Run gathers data over at most maxRounds rounds. Each round sees the ledger
// of the rounds before it. The loop stops when the model judges the data
// complete, when the round budget is spent, or as soon as every round so far
// has failed. A non-nil *Error means the request context ended the loop; the
// ledger gathered until then is still returned.
func (it *InsightIterator) Run(ctx context.Context, q Query, schemaText string) (Ledger, StopReason, *Error) {
	ledger := Ledger{}
	for index := 1; index <= it.maxRounds; index++ {
		if err := ctx.Err(); err != nil {
			return ledger, StopAborted, contextError("insight_loop", err)
		}

		cycle := it.cycle.Run(ctx, q, schemaText, ledger)
		if cycle.Err != nil && (cycle.Err.Kind == KindCancelled || ctx.Err() != nil) {
			return ledger, StopAborted, cycle.Err
		}

		round := Round{Index: index, Attempt: cycle.Attempt, Outcome: cycle.Outcome}
		if cycle.Err != nil {
			round.Outcome = failureOutcome(cycle.Err.Detail, CodeSynthesisFailed)
		}
		if round.Outcome.Success {
			assessment := it.assess(ctx, q, ledger.Append(round))
			round.Assessment = &assessment
		}
		ledger = ledger.Append(round)

		it.logRound(q, round)
		if round.Outcome.Success && round.Assessment.Complete {
			return ledger, StopComplete, nil
		}
		if ledger.AllFailed() {
			return ledger, StopAllFailed, nil
		}
	}
	return ledger, StopRoundLimit, nil
}

// assess treats a failed completeness check as complete so a broken model
// cannot keep the loop spinning.
func (it *InsightIterator) assess(ctx context.Context, q Query, ledger Ledger) Assessment {
	assessment, err := it.responder.AssessCompleteness(ctx, q, ledger)
	if err != nil {
		it.logger.Warn("completeness check failed, treating data as complete",
			slog.String("request_id", q.ID),
			slog.Any("error", err),
		)
		return Assessment{Complete: true}
	}
	return assessment
}

func (it *InsightIterator) logRound(q Query, round Round) {
	outcome := "failure"
	if round.Outcome.Success {
		outcome = "success"
	}
	observability.IncrementInsightRound(outcome)

	attrs := []any{
		slog.String("request_id", q.ID),
		slog.Int("round", round.Index),
		slog.String("outcome", outcome),
	}
	if round.Assessment != nil {
		attrs = append(attrs, slog.Bool("complete", round.Assessment.Complete))
	}
	it.logger.Debug("insight round recorded", attrs...)
}
