// Package llm is the language model capability consumed by the orchestrator.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

type Params struct {
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type Model interface {
	Complete(ctx context.Context, prompt Prompt, params Params) (string, error)
}

// StatusError is returned when the upstream answers with a non-success status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat completion failed status=%d body=%s", e.StatusCode, e.Body)
}

// Retryable reports whether a fresh attempt may succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

var ErrEmptyCompletion = errors.New("model returned an empty completion")

// IsTimeout reports whether err came from a deadline, either the per-call
// timeout or the caller's context.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
