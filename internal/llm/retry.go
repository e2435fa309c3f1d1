package llm

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/sethvargo/go-retry"
)

const defaultRetryBase = 250 * time.Millisecond

// Retrying re-issues failed completions at most MaxRetries times. Only
// timeouts, throttling and server errors are retried, and never after the
// caller's context is done.
type Retrying struct {
	Model      Model
	MaxRetries int
	Base       time.Duration
}

func (r *Retrying) Complete(ctx context.Context, prompt Prompt, params Params) (string, error) {
	if r.MaxRetries <= 0 {
		return r.Model.Complete(ctx, prompt, params)
	}
	base := r.Base
	if base <= 0 {
		base = defaultRetryBase
	}
	backoff := retry.WithMaxRetries(uint64(r.MaxRetries), retry.NewExponential(base))

	var content string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		result, err := r.Model.Complete(ctx, prompt, params)
		if err != nil {
			if ctx.Err() == nil && isRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		content = result
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// isRetryable admits failures another attempt can fix. Malformed or empty
// responses are deterministic and fail on the first attempt.
func isRetryable(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return status.Retryable()
	}
	if IsTimeout(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// body cut off mid-read
	return errors.Is(err, io.ErrUnexpectedEOF)
}
