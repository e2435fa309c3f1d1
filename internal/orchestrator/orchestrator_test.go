package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckmesh/nlq/internal/llm"
	"github.com/duckmesh/nlq/internal/query"
)

func TestHandleChitchatNeverTouchesEngine(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent:   reply("CHITCHAT"),
		stageChitchat: reply("Hello! How can I help you with your data today?"),
	})
	engine := newFakeEngine()
	o := newTestOrchestrator(t, model, engine, testConfig())

	result := o.Handle(context.Background(), NewQuery("Hello", ""))

	require.False(t, result.Failed())
	assert.Equal(t, IntentChitchat, result.Intent)
	assert.Contains(t, result.Answer, "Hello")
	assert.Equal(t, 0, engine.calls())
	assert.Equal(t, 2, model.total())
	assert.NotEmpty(t, result.QueryID)
}

func TestHandleRetrievalFirstExecutionSucceeds(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent: reply("DATA_RETRIEVAL"),
		stageSQL:    reply("SELECT COUNT(*) AS count FROM users WHERE active"),
		stageRetrieval: func(prompt llm.Prompt, _ int) (string, error) {
			require.Contains(t, prompt.User, "count: 1234")
			return "There are 1234 active users.", nil
		},
	})
	engine := newFakeEngine(rowsResult([]string{"count"}, []any{int64(1234)}))
	o := newTestOrchestrator(t, model, engine, testConfig())

	result := o.Handle(context.Background(), NewQuery("How many active users are there?", "req-1"))

	require.False(t, result.Failed(), "unexpected failure: %v", result.Err)
	assert.Equal(t, "req-1", result.QueryID)
	assert.Equal(t, IntentDataRetrieval, result.Intent)
	assert.Contains(t, result.Answer, "1234")
	assert.Equal(t, 1, engine.calls())
	assert.Equal(t, 0, model.count(stageCorrection))
	assert.Equal(t, 100, engine.requests[0].MaxRows)
	assert.Equal(t, time.Second, engine.requests[0].Timeout)

	sqlPrompt := model.prompt(stageSQL, 0)
	assert.Contains(t, sqlPrompt.User, "- users:")
	assert.Contains(t, sqlPrompt.User, "  - active (boolean, NOT NULL)")
	assert.Contains(t, sqlPrompt.User, "Question: How many active users are there?")
}

func TestHandleRetrievalOneCorrectionSucceeds(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent:     reply("DATA_RETRIEVAL"),
		stageSQL:        reply("SELECT SUM(revenu) FROM orders"),
		stageCorrection: reply("SELECT SUM(revenue) AS revenue FROM orders"),
		stageRetrieval:  reply("Total revenue is 567,890.12 SAR."),
	})
	engine := newFakeEngine(
		execError(`column "revenu" not found`, "42703"),
		rowsResult([]string{"revenue"}, []any{567890.12}),
	)
	o := newTestOrchestrator(t, model, engine, testConfig())

	result := o.Handle(context.Background(), NewQuery("What is our total revenue?", ""))

	require.False(t, result.Failed(), "unexpected failure: %v", result.Err)
	assert.Equal(t, 2, engine.calls())
	assert.Equal(t, 1, model.count(stageCorrection))
	assert.Equal(t, []string{"SELECT SUM(revenu) FROM orders", "SELECT SUM(revenue) AS revenue FROM orders"}, engine.statements())

	correction := model.prompt(stageCorrection, 0)
	assert.Contains(t, correction.User, "SELECT SUM(revenu) FROM orders")
	assert.Contains(t, correction.User, `column "revenu" not found`)
	assert.Contains(t, correction.User, "42703")

	synthesis := model.prompt(stageRetrieval, 0)
	assert.Contains(t, synthesis.User, "revenue: 567,890.12 SAR")
}

func TestHandleRetrievalExhaustsCorrections(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent:     reply("DATA_RETRIEVAL"),
		stageSQL:        reply("SELECT missing FROM users"),
		stageCorrection: replies("SELECT missing2 FROM users", "SELECT missing3 FROM users"),
	})
	engine := newFakeEngine(execError("column not found", "42703"))
	o := newTestOrchestrator(t, model, engine, testConfig())

	result := o.Handle(context.Background(), NewQuery("Show me the missing column", ""))

	require.True(t, result.Failed())
	assert.Equal(t, KindCorrectionExhausted, result.Err.Kind)
	assert.Equal(t, NoDataAnswer, result.Err.Detail)
	assert.NotContains(t, result.Err.Detail, "SELECT")
	assert.Equal(t, 3, engine.calls())
	assert.Equal(t, 2, model.count(stageCorrection))
	assert.Equal(t, 0, model.count(stageRetrieval), "no model call to describe missing data")
	assert.Empty(t, result.Answer)
}

func TestHandleExecutorCallsBoundedByCorrectionBudget(t *testing.T) {
	for maxCorrections := 0; maxCorrections <= 4; maxCorrections++ {
		t.Run(fmt.Sprintf("max=%d", maxCorrections), func(t *testing.T) {
			model := newFakeModel(map[string]modelReply{
				stageIntent:     reply("DATA_RETRIEVAL"),
				stageSQL:        reply("SELECT broken FROM users"),
				stageCorrection: reply("SELECT still_broken FROM users"),
			})
			engine := newFakeEngine(execError("syntax error", "42601"))
			cfg := testConfig()
			cfg.MaxCorrections = maxCorrections
			o := newTestOrchestrator(t, model, engine, cfg)

			result := o.Handle(context.Background(), NewQuery("q", ""))

			require.True(t, result.Failed())
			assert.LessOrEqual(t, engine.calls(), maxCorrections+1)
			assert.Equal(t, maxCorrections+1, engine.calls())
			if maxCorrections == 0 {
				assert.Equal(t, KindSQLExecutionFailure, result.Err.Kind)
			} else {
				assert.Equal(t, KindCorrectionExhausted, result.Err.Kind)
			}
		})
	}
}

func TestHandleCorrectorFailureConsumesAttempt(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent: reply("DATA_RETRIEVAL"),
		stageSQL:    reply("SELECT nme FROM users"),
		stageCorrection: func(_ llm.Prompt, call int) (string, error) {
			if call == 0 {
				return "", &llm.StatusError{StatusCode: 503, Body: "overloaded"}
			}
			return "SELECT name FROM users", nil
		},
		stageRetrieval: reply("Here are the names."),
	})
	engine := newFakeEngine(
		execError("no such column: nme", "1"),
		rowsResult([]string{"name"}, []any{"ada"}),
	)
	o := newTestOrchestrator(t, model, engine, testConfig())

	result := o.Handle(context.Background(), NewQuery("List user names", ""))

	require.False(t, result.Failed(), "unexpected failure: %v", result.Err)
	assert.Equal(t, 2, model.count(stageCorrection))
	assert.Equal(t, 2, engine.calls())

	second := model.prompt(stageCorrection, 1)
	assert.Contains(t, second.User, "SELECT nme FROM users", "retry corrects the last executed statement")
	assert.Contains(t, second.User, "no such column: nme")
}

func TestHandleRejectsNonSelectCorrectionWithoutExecuting(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent:     reply("DATA_RETRIEVAL"),
		stageSQL:        reply("SELECT * FROM userz"),
		stageCorrection: reply("DROP TABLE users"),
	})
	engine := newFakeEngine(execError("no such table: userz", "1"))
	o := newTestOrchestrator(t, model, engine, testConfig())

	result := o.Handle(context.Background(), NewQuery("all users", ""))

	require.True(t, result.Failed())
	assert.Equal(t, KindCorrectionExhausted, result.Err.Kind)
	assert.Equal(t, 1, engine.calls(), "rejected statements never reach the engine")
	assert.Equal(t, 2, model.count(stageCorrection))
	for _, statement := range engine.statements() {
		assert.NotContains(t, statement, "DROP")
	}
}

func TestHandleExecutesIdenticalCorrectionAgain(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent:     reply("DATA_RETRIEVAL"),
		stageSQL:        reply("SELECT COUNT(*) AS count FROM users"),
		stageCorrection: reply("```sql\nSELECT COUNT(*) AS count FROM users;\n```"),
		stageRetrieval:  reply("There are 7 users."),
	})
	engine := newFakeEngine(
		execError("database is locked", "5"),
		rowsResult([]string{"count"}, []any{int64(7)}),
	)
	o := newTestOrchestrator(t, model, engine, testConfig())

	result := o.Handle(context.Background(), NewQuery("How many users?", ""))

	require.False(t, result.Failed(), "unexpected failure: %v", result.Err)
	assert.Equal(t, []string{"SELECT COUNT(*) AS count FROM users", "SELECT COUNT(*) AS count FROM users"}, engine.statements())
}

func TestHandleMalformedIntentFallsBackToRetrieval(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent:    reply("I think this is about data"),
		stageSQL:       reply("SELECT COUNT(*) AS count FROM users"),
		stageRetrieval: reply("There are 3 users."),
	})
	engine := newFakeEngine(rowsResult([]string{"count"}, []any{int64(3)}))
	o := newTestOrchestrator(t, model, engine, testConfig())

	result := o.Handle(context.Background(), NewQuery("users?", ""))

	require.False(t, result.Failed())
	assert.Equal(t, FallbackIntent, result.Intent)
	assert.Equal(t, IntentDataRetrieval, result.Intent)
	assert.Equal(t, 1, engine.calls())
	assert.Equal(t, 0, model.count(stageChitchat))
}

func TestHandleClassificationModelErrorFails(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent: fail(&llm.StatusError{StatusCode: 500, Body: "internal"}),
	})
	engine := newFakeEngine()
	o := newTestOrchestrator(t, model, engine, testConfig())

	result := o.Handle(context.Background(), NewQuery("How many users?", ""))

	require.True(t, result.Failed())
	assert.Equal(t, KindLanguageModelFailure, result.Err.Kind)
	assert.Equal(t, ClassificationFailed, result.Err.Detail)
	assert.Equal(t, 1, model.total())
	assert.Equal(t, 0, engine.calls())
}

func TestHandleChitchatModelErrorUsesFixedDetail(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent:   reply("chitchat"),
		stageChitchat: fail(errors.New("connection reset")),
	})
	o := newTestOrchestrator(t, model, newFakeEngine(), testConfig())

	result := o.Handle(context.Background(), NewQuery("hi there", ""))

	require.True(t, result.Failed())
	assert.Equal(t, KindLanguageModelFailure, result.Err.Kind)
	assert.Equal(t, ChitchatUnavailable, result.Err.Detail)
	assert.Equal(t, IntentChitchat, result.Intent)
}

func TestHandleSQLSynthesisModelErrorEndsCycle(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent: reply("DATA_RETRIEVAL"),
		stageSQL:    fail(errors.New("model unavailable")),
	})
	engine := newFakeEngine()
	o := newTestOrchestrator(t, model, engine, testConfig())

	result := o.Handle(context.Background(), NewQuery("How many users?", ""))

	require.True(t, result.Failed())
	assert.Equal(t, KindSQLSynthesisFailure, result.Err.Kind)
	assert.Equal(t, SQLSynthesisUnavailable, result.Err.Detail)
	assert.Equal(t, 0, engine.calls())
	assert.Equal(t, 0, model.count(stageCorrection))
}

func TestHandleEmptySynthesisIsCorrected(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent:     reply("DATA_RETRIEVAL"),
		stageSQL:        reply("```sql\n```"),
		stageCorrection: reply("SELECT COUNT(*) AS count FROM users"),
		stageRetrieval:  reply("There are 7 users."),
	})
	engine := newFakeEngine(rowsResult([]string{"count"}, []any{int64(7)}))
	o := newTestOrchestrator(t, model, engine, testConfig())

	result := o.Handle(context.Background(), NewQuery("How many users?", ""))

	require.False(t, result.Failed(), "unexpected failure: %v", result.Err)
	assert.Equal(t, "There are 7 users.", result.Answer)
	assert.Equal(t, 1, model.count(stageCorrection))
	assert.Equal(t, []string{"SELECT COUNT(*) AS count FROM users"}, engine.statements())
	assert.Contains(t, model.prompt(stageCorrection, 0).User, "empty statement")
}

func TestHandleEmptySynthesisConsumesCorrectionBudget(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent:     reply("DATA_RETRIEVAL"),
		stageSQL:        reply("   "),
		stageCorrection: reply(";"),
	})
	engine := newFakeEngine()
	o := newTestOrchestrator(t, model, engine, testConfig())

	result := o.Handle(context.Background(), NewQuery("How many users?", ""))

	require.True(t, result.Failed())
	assert.Equal(t, KindCorrectionExhausted, result.Err.Kind)
	assert.Equal(t, 2, model.count(stageCorrection))
	assert.Equal(t, 0, engine.calls())
}

func TestHandleSQLSynthesisTimeoutIsUpstreamTimeout(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent: reply("DATA_RETRIEVAL"),
		stageSQL:    fail(fmt.Errorf("chat completion request failed: %w", context.DeadlineExceeded)),
	})
	o := newTestOrchestrator(t, model, newFakeEngine(), testConfig())

	result := o.Handle(context.Background(), NewQuery("How many users?", ""))

	require.True(t, result.Failed())
	assert.Equal(t, KindUpstreamTimeout, result.Err.Kind)
}

func TestHandleResponseSynthesisModelError(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent:    reply("DATA_RETRIEVAL"),
		stageSQL:       reply("SELECT COUNT(*) AS count FROM users"),
		stageRetrieval: fail(errors.New("boom")),
	})
	engine := newFakeEngine(rowsResult([]string{"count"}, []any{int64(1)}))
	o := newTestOrchestrator(t, model, engine, testConfig())

	result := o.Handle(context.Background(), NewQuery("How many users?", ""))

	require.True(t, result.Failed())
	assert.Equal(t, KindLanguageModelFailure, result.Err.Kind)
	assert.Equal(t, SynthesisUnavailable, result.Err.Detail)
}

func TestHandleStatementTimeoutsConsumeAttempts(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent:     reply("DATA_RETRIEVAL"),
		stageSQL:        reply("SELECT * FROM orders"),
		stageCorrection: reply("SELECT id FROM orders"),
	})
	engine := newFakeEngine(func(context.Context, query.Request, int) (query.Result, error) {
		return query.Result{}, &query.ExecutionError{Message: "statement timed out after 1s", Timeout: true}
	})
	cfg := testConfig()
	cfg.MaxCorrections = 1
	o := newTestOrchestrator(t, model, engine, cfg)

	result := o.Handle(context.Background(), NewQuery("all orders", ""))

	require.True(t, result.Failed())
	assert.Equal(t, KindUpstreamTimeout, result.Err.Kind)
	assert.Equal(t, TimeoutDetail, result.Err.Detail)
	assert.Equal(t, 2, engine.calls())
}

func TestHandleCancelledBeforeStartMakesNoCalls(t *testing.T) {
	model := newFakeModel(map[string]modelReply{stageIntent: reply("DATA_RETRIEVAL")})
	engine := newFakeEngine()
	o := newTestOrchestrator(t, model, engine, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := o.Handle(ctx, NewQuery("How many users?", ""))

	require.True(t, result.Failed())
	assert.Equal(t, KindCancelled, result.Err.Kind)
	assert.Equal(t, 0, model.total())
	assert.Equal(t, 0, engine.calls())
}

func TestHandleStopsIssuingCallsAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := newFakeModel(map[string]modelReply{
		stageIntent:     reply("DATA_RETRIEVAL"),
		stageSQL:        reply("SELECT * FROM users"),
		stageCorrection: reply("SELECT id FROM users"),
	})
	engine := newFakeEngine(func(context.Context, query.Request, int) (query.Result, error) {
		cancel()
		return query.Result{}, &query.ExecutionError{Message: "statement cancelled"}
	})
	o := newTestOrchestrator(t, model, engine, testConfig())

	result := o.Handle(ctx, NewQuery("all users", ""))

	require.True(t, result.Failed())
	assert.Equal(t, KindCancelled, result.Err.Kind)
	assert.Equal(t, 1, engine.calls())
	assert.Equal(t, 0, model.count(stageCorrection))
}

func TestHandleRecoversFromPanics(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent: reply("DATA_RETRIEVAL"),
		stageSQL:    reply("SELECT 1"),
	})
	engine := newFakeEngine(func(context.Context, query.Request, int) (query.Result, error) {
		panic("driver bug")
	})
	o := newTestOrchestrator(t, model, engine, testConfig())

	var result Result
	require.NotPanics(t, func() {
		result = o.Handle(context.Background(), NewQuery("anything", ""))
	})
	require.True(t, result.Failed())
	assert.Equal(t, KindUnrecoverableInternal, result.Err.Kind)
	assert.Equal(t, InternalDetail, result.Err.Detail)
	assert.NotContains(t, result.Err.Detail, "driver bug")
}

func TestHandleIsDeterministicForDeterministicModel(t *testing.T) {
	cases := map[string]engineReply{
		"success": rowsResult([]string{"count"}, []any{int64(42)}),
		"failure": execError("relation does not exist", "42P01"),
	}
	for name, engineScript := range cases {
		t.Run(name, func(t *testing.T) {
			var results []Result
			for i := 0; i < 2; i++ {
				model := newFakeModel(map[string]modelReply{
					stageIntent:     reply("DATA_RETRIEVAL"),
					stageSQL:        reply("SELECT COUNT(*) AS count FROM users"),
					stageCorrection: reply("SELECT COUNT(*) AS count FROM users"),
					stageRetrieval:  reply("There are 42 users."),
				})
				o := newTestOrchestrator(t, model, newFakeEngine(engineScript), testConfig())
				results = append(results, o.Handle(context.Background(), NewQuery("How many users?", "")))
			}
			assert.Equal(t, results[0].Intent, results[1].Intent)
			assert.Equal(t, results[0].Failed(), results[1].Failed())
			if results[0].Failed() {
				assert.Equal(t, results[0].Err.Kind, results[1].Err.Kind)
			} else {
				assert.Equal(t, results[0].Answer, results[1].Answer)
			}
		})
	}
}

func TestHandlePassesModelParams(t *testing.T) {
	model := newFakeModel(map[string]modelReply{
		stageIntent:   reply("CHITCHAT"),
		stageChitchat: reply("hi"),
	})
	o := newTestOrchestrator(t, model, newFakeEngine(), testConfig())
	o.Handle(context.Background(), NewQuery("hi", ""))

	require.Len(t, model.params, 2)
	for _, params := range model.params {
		assert.Equal(t, "test-model", params.Model)
		assert.Equal(t, time.Second, params.Timeout)
		assert.Zero(t, params.Temperature)
	}
}

func TestNewValidatesBudgets(t *testing.T) {
	model := newFakeModel(nil)
	engine := newFakeEngine()
	source := staticSource{snapshot: usersSchema().Snapshot}

	for _, mutate := range []func(*Config){
		func(c *Config) { c.MaxRounds = 0 },
		func(c *Config) { c.MaxRounds = 11 },
		func(c *Config) { c.MaxCorrections = -1 },
		func(c *Config) { c.MaxCorrections = 11 },
		func(c *Config) { c.MaxRows = 0 },
		func(c *Config) { c.SQLTimeout = 0 },
		func(c *Config) { c.LLM.Timeout = -time.Second },
	} {
		cfg := testConfig()
		mutate(&cfg)
		_, err := New(model, engine, source, cfg, nil)
		assert.Error(t, err)
	}

	_, err := New(nil, engine, source, testConfig(), nil)
	assert.Error(t, err)
	_, err = New(model, nil, source, testConfig(), nil)
	assert.Error(t, err)
	_, err = New(model, engine, nil, testConfig(), nil)
	assert.Error(t, err)
}

func TestNewQueryGeneratesRequestID(t *testing.T) {
	first := NewQuery("a", "")
	second := NewQuery("a", " ")
	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "given", NewQuery("a", "given").ID)
}

func TestErrorKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newError(KindCorrectionExhausted, "retrieval_cycle", NoDataAnswer, errors.New("cause")))
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindCorrectionExhausted, kind)
	assert.Contains(t, err.Error(), "cause")

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}
