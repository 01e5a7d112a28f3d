// Package retry provides the orchestration-level bounded retry executor.
// Its fixed progressive delays bound total wall-clock time at the pipeline
// layer, independent of the transport client's own exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/hellausefulsoftware/issuescout/internal/errs"
	"github.com/hellausefulsoftware/issuescout/internal/logging"
)

// Executor retries an operation up to MaxAttempts additional times, sleeping
// Delays[min(attempt, len-1)] between attempts. No jitter: jitter belongs to
// the transport layer.
type Executor struct {
	MaxAttempts int
	Delays      []time.Duration
	// ForceRetryable lists kinds retried at this layer even though the
	// classifier marks them non-retryable (e.g. FILE_SYSTEM during report
	// save, where transient directory races resolve quickly).
	ForceRetryable []errs.Kind
	Sleep          func(time.Duration)
}

// NewExecutor returns an executor with the default policy: three retries with
// progressive 1s/2s/4s delays.
func NewExecutor() *Executor {
	return &Executor{
		MaxAttempts: 3,
		Delays:      []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		Sleep:       time.Sleep,
	}
}

func (e *Executor) retryable(serr *errs.ScraperError) bool {
	if serr.Retryable {
		return true
	}
	for _, k := range e.ForceRetryable {
		if serr.Kind == k {
			return true
		}
	}
	return false
}

func (e *Executor) delay(attempt int) time.Duration {
	if len(e.Delays) == 0 {
		return 0
	}
	if attempt >= len(e.Delays) {
		attempt = len(e.Delays) - 1
	}
	return e.Delays[attempt]
}

// Do runs op with bounded retries. On exhaustion or a non-retryable failure
// it returns the classified error from the final attempt.
func Do[T any](ctx context.Context, e *Executor, opCtx errs.Context, op func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		serr := errs.Classify(err, opCtx)
		if !e.retryable(serr) || attempt >= e.MaxAttempts {
			return zero, serr
		}

		d := e.delay(attempt)
		logging.Warn("operation failed, retrying",
			"operation", opCtx.Operation,
			"attempt", attempt+1,
			"max_attempts", e.MaxAttempts+1,
			"delay", d,
			"error", serr.Message)
		e.Sleep(d)
	}
}
