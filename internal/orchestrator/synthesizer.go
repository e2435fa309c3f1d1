package orchestrator

import (
	"context"
	"fmt"

	"github.com/duckmesh/nlq/internal/llm"
	"github.com/duckmesh/nlq/internal/sqlguard"
)

// SQLSynthesizer turns a question into a statement.
type SQLSynthesizer struct {
	caller   modelCaller
	settings PromptSettings
}

// Generate returns the normalized model output. Empty output is not an error
// here: the guard rejects it and the cycle corrects it like any other
// unusable statement.
func (s *SQLSynthesizer) Generate(ctx context.Context, question, schemaText string, ledger Ledger) (string, error) {
	raw, err := s.caller.complete(ctx, "sql_synthesis", SQLGenerationPrompt(question, schemaText, ledger, s.settings))
	if err != nil {
		return "", err
	}
	return sqlguard.Normalize(raw), nil
}

// ErrorCorrector rewrites a failed statement given the database error.
type ErrorCorrector struct {
	caller   modelCaller
	settings PromptSettings
}

func (c *ErrorCorrector) Correct(ctx context.Context, question, schemaText string, failed SQLAttempt, failure Outcome) (string, error) {
	raw, err := c.caller.complete(ctx, "sql_correction", CorrectionPrompt(question, schemaText, failed, failure, c.settings))
	if err != nil {
		return "", err
	}
	statement := sqlguard.Normalize(raw)
	if statement == "" {
		return "", fmt.Errorf("sql correction: %w", llm.ErrEmptyCompletion)
	}
	return statement, nil
}
