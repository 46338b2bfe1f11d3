package indexer

import (
	"context"
	"errors"
	"time"
)

// retryPolicy bounds how often a source read is repeated. onRetry, when
// set, sees every failure that will be retried.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	onRetry    func(attempt int, delay time.Duration, err error)
}

// withRetry calls fn until it succeeds, the retries are spent or ctx ends.
// The delay doubles after every failure. Context errors returned by fn are
// final.
func withRetry(ctx context.Context, p retryPolicy, fn func(context.Context) error) error {
	maxRetries := p.maxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := p.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt > maxRetries || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if p.onRetry != nil {
			p.onRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}
