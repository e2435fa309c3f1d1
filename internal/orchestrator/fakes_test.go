package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duckmesh/nlq/internal/llm"
	"github.com/duckmesh/nlq/internal/query"
	"github.com/duckmesh/nlq/internal/schema"
)

const (
	stageIntent       = "intent"
	stageChitchat     = "chitchat"
	stageSQL          = "sql"
	stageCorrection   = "correction"
	stageRetrieval    = "retrieval_synthesis"
	stageInsight      = "insight_synthesis"
	stageCompleteness = "completeness"
)

// stageOf recognizes which builder produced a prompt.
func stageOf(prompt llm.Prompt) string {
	switch {
	case strings.HasPrefix(prompt.System, "You classify"):
		return stageIntent
	case strings.HasPrefix(prompt.System, "You are a friendly"):
		return stageChitchat
	case strings.Contains(prompt.System, "You fix queries"):
		return stageCorrection
	case strings.HasPrefix(prompt.System, "You write a single read-only"):
		return stageSQL
	case strings.HasPrefix(prompt.System, "You decide whether"):
		return stageCompleteness
	case strings.Contains(prompt.System, "Combine the results"):
		return stageInsight
	default:
		return stageRetrieval
	}
}

type modelReply func(prompt llm.Prompt, call int) (string, error)

func reply(text string) modelReply {
	return func(llm.Prompt, int) (string, error) { return text, nil }
}

func replies(texts ...string) modelReply {
	return func(_ llm.Prompt, call int) (string, error) {
		if call >= len(texts) {
			return texts[len(texts)-1], nil
		}
		return texts[call], nil
	}
}

func fail(err error) modelReply {
	return func(llm.Prompt, int) (string, error) { return "", err }
}

// fakeModel answers per stage and records every call.
type fakeModel struct {
	mu       sync.Mutex
	handlers map[string]modelReply
	calls    []string
	prompts  map[string][]llm.Prompt
	params   []llm.Params
}

func newFakeModel(handlers map[string]modelReply) *fakeModel {
	return &fakeModel{handlers: handlers, prompts: map[string][]llm.Prompt{}}
}

func (m *fakeModel) Complete(_ context.Context, prompt llm.Prompt, params llm.Params) (string, error) {
	m.mu.Lock()
	stage := stageOf(prompt)
	call := len(m.prompts[stage])
	m.calls = append(m.calls, stage)
	m.prompts[stage] = append(m.prompts[stage], prompt)
	m.params = append(m.params, params)
	handler, ok := m.handlers[stage]
	m.mu.Unlock()

	if !ok {
		return "", errors.New("unexpected model call for stage " + stage)
	}
	return handler(prompt, call)
}

func (m *fakeModel) count(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts[stage])
}

func (m *fakeModel) prompt(stage string, index int) llm.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompts[stage][index]
}

func (m *fakeModel) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type engineReply func(ctx context.Context, request query.Request, call int) (query.Result, error)

func rowsResult(columns []string, rows ...[]any) engineReply {
	return func(context.Context, query.Request, int) (query.Result, error) {
		return query.Result{Columns: columns, Rows: rows}, nil
	}
}

func execError(message, code string) engineReply {
	return func(context.Context, query.Request, int) (query.Result, error) {
		return query.Result{}, &query.ExecutionError{Message: message, Code: code}
	}
}

// fakeEngine replays scripted replies; the last reply repeats.
type fakeEngine struct {
	mu       sync.Mutex
	script   []engineReply
	requests []query.Request
}

func newFakeEngine(script ...engineReply) *fakeEngine {
	return &fakeEngine{script: script}
}

func (e *fakeEngine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	e.mu.Lock()
	call := len(e.requests)
	e.requests = append(e.requests, request)
	var next engineReply
	switch {
	case len(e.script) == 0:
		next = execError("no scripted reply", "")
	case call < len(e.script):
		next = e.script[call]
	default:
		next = e.script[len(e.script)-1]
	}
	e.mu.Unlock()
	return next(ctx, request, call)
}

func (e *fakeEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

func (e *fakeEngine) statements() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.requests))
	for _, request := range e.requests {
		out = append(out, request.SQL)
	}
	return out
}

func usersSchema() schema.Static {
	return schema.Static{Snapshot: schema.Snapshot{Tables: []schema.Table{
		{Name: "users", Columns: []schema.Column{
			{Name: "id", Type: "integer", PrimaryKey: true},
			{Name: "active", Type: "boolean"},
		}},
		{Name: "orders", Columns: []schema.Column{
			{Name: "id", Type: "integer", PrimaryKey: true},
			{Name: "user_id", Type: "integer", ForeignKey: &schema.ForeignKey{Table: "users", Column: "id"}},
			{Name: "revenue", Type: "numeric"},
			{Name: "created_at", Type: "timestamp"},
		}},
	}}}
}

type staticSource struct {
	snapshot schema.Snapshot
}

func (s staticSource) Current() schema.Snapshot {
	return s.snapshot
}

func testConfig() Config {
	return Config{
		LLM:             llm.Params{Model: "test-model", Temperature: 0, Timeout: time.Second},
		SQLTimeout:      time.Second,
		MaxRows:         100,
		MaxCorrections:  2,
		MaxRounds:       3,
		PromptMaxRows:   50,
		Dialect:         "sqlite",
		Format:          FormatOptions{CurrencySuffix: "SAR"},
		SQLLogMaxLength: 200,
		LLMLogMaxLength: 200,
	}
}

func newTestOrchestrator(t *testing.T, model llm.Model, engine query.Engine, cfg Config) *Orchestrator {
	t.Helper()
	o, err := New(model, engine, staticSource{snapshot: usersSchema().Snapshot}, cfg, discardLogger())
	require.NoError(t, err)
	return o
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
