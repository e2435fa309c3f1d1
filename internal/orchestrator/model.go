package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/duckmesh/nlq/internal/llm"
	"github.com/duckmesh/nlq/internal/observability"
)

// modelCaller is the single path every stage uses to reach the model.
type modelCaller struct {
	model  llm.Model
	params llm.Params
	logger *slog.Logger
	logMax int
}

func (c modelCaller) complete(ctx context.Context, stage string, prompt llm.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.logger.Debug("model request",
		slog.String("request_id", observability.RequestIDFromContext(ctx)),
		slog.String("stage", stage),
		slog.String("prompt", observability.Truncate(prompt.User, c.logMax)),
	)

	text, err := c.model.Complete(ctx, prompt, c.params)
	if err != nil {
		c.logger.Warn("model call failed",
			slog.String("request_id", observability.RequestIDFromContext(ctx)),
			slog.String("stage", stage),
			slog.Any("error", err),
		)
		return "", fmt.Errorf("%s completion: %w", stage, err)
	}

	text = strings.TrimSpace(text)
	c.logger.Debug("model response",
		slog.String("request_id", observability.RequestIDFromContext(ctx)),
		slog.String("stage", stage),
		slog.String("content", observability.Truncate(text, c.logMax)),
	)
	return text, nil
}

// contextError classifies a done request context.
func contextError(stage string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindUpstreamTimeout, stage, TimeoutDetail, err)
	}
	return newError(KindCancelled, stage, CancelledDetail, err)
}

// modelFailure classifies a failed model call at stage. A done context wins
// over the call's own error.
func modelFailure(ctx context.Context, stage, detail string, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return contextError(stage, ctxErr)
	}
	if llm.IsTimeout(err) {
		return newError(KindUpstreamTimeout, stage, detail, err)
	}
	return newError(KindLanguageModelFailure, stage, detail, err)
}
