// Package orchestrator routes a natural-language question through intent
// classification, SQL synthesis with bounded correction, optional multi-round
// insight gathering and response synthesis.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/duckmesh/nlq/internal/llm"
	"github.com/duckmesh/nlq/internal/observability"
	"github.com/duckmesh/nlq/internal/query"
	"github.com/duckmesh/nlq/internal/schema"
)

const (
	MaxInsightRoundsLimit      = 10
	MaxCorrectionAttemptsLimit = 10
)

type Config struct {
	LLM             llm.Params
	SQLTimeout      time.Duration
	MaxRows         int
	MaxCorrections  int
	MaxRounds       int
	PromptMaxRows   int
	Dialect         string
	Format          FormatOptions
	SQLLogMaxLength int
	LLMLogMaxLength int
}

func (c Config) validate() error {
	if c.MaxRounds < 1 || c.MaxRounds > MaxInsightRoundsLimit {
		return fmt.Errorf("max insight rounds must be within [1, %d], got %d", MaxInsightRoundsLimit, c.MaxRounds)
	}
	if c.MaxCorrections < 0 || c.MaxCorrections > MaxCorrectionAttemptsLimit {
		return fmt.Errorf("max correction attempts must be within [0, %d], got %d", MaxCorrectionAttemptsLimit, c.MaxCorrections)
	}
	if c.MaxRows < 1 {
		return fmt.Errorf("max rows must be >= 1, got %d", c.MaxRows)
	}
	if c.SQLTimeout <= 0 {
		return fmt.Errorf("sql timeout must be > 0, got %s", c.SQLTimeout)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm timeout must be > 0, got %s", c.LLM.Timeout)
	}
	return nil
}

// SchemaSource supplies the current schema snapshot.
type SchemaSource interface {
	Current() schema.Snapshot
}

type Orchestrator struct {
	schemas    SchemaSource
	logger     *slog.Logger
	caller     modelCaller
	classifier *IntentClassifier
	cycle      *CorrectionCycle
	insight    *InsightIterator
	responder  *ResponseSynthesizer
}

func New(model llm.Model, engine query.Engine, schemas SchemaSource, cfg Config, logger *slog.Logger) (*Orchestrator, error) {
	if model == nil {
		return nil, fmt.Errorf("language model is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	if schemas == nil {
		return nil, fmt.Errorf("schema source is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PromptMaxRows < 1 {
		cfg.PromptMaxRows = 50
	}

	caller := modelCaller{model: model, params: cfg.LLM, logger: logger, logMax: cfg.LLMLogMaxLength}
	settings := PromptSettings{Dialect: cfg.Dialect, MaxRows: cfg.PromptMaxRows, Formatter: NewFormatter(cfg.Format)}
	responder := &ResponseSynthesizer{caller: caller, settings: settings}
	cycle := &CorrectionCycle{
		synthesizer:    &SQLSynthesizer{caller: caller, settings: settings},
		corrector:      &ErrorCorrector{caller: caller, settings: settings},
		engine:         engine,
		dialect:        cfg.Dialect,
		maxCorrections: cfg.MaxCorrections,
		maxRows:        cfg.MaxRows,
		sqlTimeout:     cfg.SQLTimeout,
		logger:         logger,
		sqlLogMax:      cfg.SQLLogMaxLength,
	}

	return &Orchestrator{
		schemas:    schemas,
		logger:     logger,
		caller:     caller,
		classifier: &IntentClassifier{caller: caller},
		cycle:      cycle,
		insight:    &InsightIterator{cycle: cycle, responder: responder, maxRounds: cfg.MaxRounds, logger: logger},
		responder:  responder,
	}, nil
}

type state string

const (
	stateStart     state = "START"
	stateIntent    state = "INTENT"
	stateChitchat  state = "CHITCHAT_REPLY"
	stateRetrieval state = "RETRIEVAL_CYCLE"
	stateInsight   state = "INSIGHT_LOOP"
	stateSynthesis state = "SYNTHESIS"
	stateDone      state = "DONE"
	stateFailed    state = "FAILED"
)

// run is the per-request state threaded through the state machine.
type run struct {
	query      Query
	intent     Intent
	schemaText string
	outcome    Outcome
	executions int
	ledger     Ledger
	stop       StopReason
	answer     string
	err        *Error
}

func (r *run) fail(err *Error) state {
	r.err = err
	r.answer = ""
	return stateFailed
}

// Handle runs one request to completion. It never panics and always returns
// either an answer or a classified failure.
func (o *Orchestrator) Handle(ctx context.Context, q Query) (result Result) {
	start := time.Now()
	ctx = observability.ContextWithRequestID(ctx, q.ID)
	r := &run{query: q}
	logger := o.logger.With(slog.String("request_id", q.ID))

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("orchestration panic",
				slog.Any("panic", recovered),
				slog.String("stack", string(debug.Stack())),
			)
			r.fail(newError(KindUnrecoverableInternal, "orchestrator", InternalDetail, fmt.Errorf("panic: %v", recovered)))
		}

		result = Result{QueryID: q.ID, Intent: r.intent, Answer: r.answer, Err: r.err}
		outcome := "success"
		if r.err != nil {
			outcome = string(r.err.Kind)
			logger.Warn("query failed",
				slog.String("intent", string(r.intent)),
				slog.String("kind", string(r.err.Kind)),
				slog.String("stage", r.err.Stage),
				slog.Any("error", r.err.Err),
			)
		}
		intentLabel := string(r.intent)
		if intentLabel == "" {
			intentLabel = "none"
		}
		observability.ObserveOrchestration(intentLabel, outcome, time.Since(start))
		logger.Info("query handled",
			slog.String("intent", intentLabel),
			slog.String("outcome", outcome),
			slog.Duration("elapsed", time.Since(start)),
		)
	}()

	current := stateStart
	for current != stateDone && current != stateFailed {
		next := o.step(ctx, current, r)
		logger.Debug("state transition", slog.String("from", string(current)), slog.String("to", string(next)))
		current = next
	}
	return result
}

func (o *Orchestrator) step(ctx context.Context, current state, r *run) state {
	switch current {
	case stateStart:
		return stateIntent
	case stateIntent:
		return o.classify(ctx, r)
	case stateChitchat:
		return o.chitchat(ctx, r)
	case stateRetrieval:
		return o.retrieve(ctx, r)
	case stateInsight:
		return o.gatherInsights(ctx, r)
	case stateSynthesis:
		return o.synthesize(ctx, r)
	default:
		return r.fail(newError(KindUnrecoverableInternal, "orchestrator", InternalDetail, fmt.Errorf("unknown state %q", current)))
	}
}

func (o *Orchestrator) classify(ctx context.Context, r *run) state {
	if err := ctx.Err(); err != nil {
		return r.fail(contextError("intent", err))
	}

	intent, err := o.classifier.Classify(ctx, r.query.Text)
	switch {
	case errors.Is(err, ErrUnrecognizedIntent):
		observability.IncrementClassificationAnomaly()
		o.logger.Warn("classification anomaly, using fallback intent",
			slog.String("request_id", r.query.ID),
			slog.String("kind", string(KindClassificationAnomaly)),
			slog.String("fallback", string(FallbackIntent)),
			slog.Any("error", err),
		)
		intent = FallbackIntent
	case err != nil:
		return r.fail(modelFailure(ctx, "intent", ClassificationFailed, err))
	}

	r.intent = intent
	switch intent {
	case IntentChitchat:
		return stateChitchat
	case IntentInsights:
		return stateInsight
	default:
		return stateRetrieval
	}
}

// chitchat answers directly. The query engine is never involved.
func (o *Orchestrator) chitchat(ctx context.Context, r *run) state {
	answer, err := o.caller.complete(ctx, "chitchat", ChitchatPrompt(r.query.Text))
	if err != nil {
		return r.fail(modelFailure(ctx, "chitchat", ChitchatUnavailable, err))
	}
	r.answer = answer
	return stateDone
}

func (o *Orchestrator) retrieve(ctx context.Context, r *run) state {
	r.schemaText = schema.Render(o.schemas.Current())
	cycle := o.cycle.Run(ctx, r.query, r.schemaText, Ledger{})
	r.executions = cycle.Executions
	if cycle.Err != nil {
		return r.fail(cycle.Err)
	}
	r.outcome = cycle.Outcome
	return stateSynthesis
}

func (o *Orchestrator) gatherInsights(ctx context.Context, r *run) state {
	r.schemaText = schema.Render(o.schemas.Current())
	ledger, stop, err := o.insight.Run(ctx, r.query, r.schemaText)
	r.ledger, r.stop = ledger, stop
	if err != nil {
		return r.fail(err)
	}
	return stateSynthesis
}

// synthesize produces the answer, and is where exhausted budgets become
// request failures.
func (o *Orchestrator) synthesize(ctx context.Context, r *run) state {
	if r.intent == IntentInsights {
		answer, err := o.responder.SynthesizeFromLedger(ctx, r.query, r.ledger)
		if err != nil {
			return r.fail(modelFailure(ctx, "insight_synthesis", SynthesisUnavailable, err))
		}
		if !r.ledger.AnySucceeded() {
			return r.fail(newError(KindInsightRoundExhausted, "insight_loop", answer,
				fmt.Errorf("no successful round in %d (stop=%s)", r.ledger.Len(), r.stop)))
		}
		r.answer = answer
		return stateDone
	}

	answer, err := o.responder.SynthesizeSingle(ctx, r.query, r.outcome)
	if err != nil {
		return r.fail(modelFailure(ctx, "retrieval_synthesis", SynthesisUnavailable, err))
	}
	if !r.outcome.Success {
		cause := fmt.Errorf("statement failed after %d executions: code=%q message=%q", r.executions, r.outcome.ErrorCode, r.outcome.ErrorMessage)
		if r.outcome.Timeout {
			return r.fail(newError(KindUpstreamTimeout, "sql_execution", TimeoutDetail, cause))
		}
		if o.cycle.maxCorrections == 0 {
			return r.fail(newError(KindSQLExecutionFailure, "sql_execution", answer, cause))
		}
		return r.fail(newError(KindCorrectionExhausted, "retrieval_cycle", answer, cause))
	}
	r.answer = answer
	return stateDone
}
