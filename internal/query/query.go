package query

import (
	"context"
	"errors"
	"time"
)

type Request struct {
	SQL     string
	MaxRows int
	Timeout time.Duration
}

type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
	Duration  time.Duration
}

// RowCount is the number of rows actually returned, after the cap.
func (r Result) RowCount() int {
	return len(r.Rows)
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// ExecutionError is a database-side failure of a single statement. Message is
// the driver text handed to error correction; Code is the dialect error code
// when the driver exposes one.
type ExecutionError struct {
	Message string
	Code    string
	Timeout bool
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// AsExecutionError returns the ExecutionError in err's chain, or nil.
func AsExecutionError(err error) *ExecutionError {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}
	return nil
}
