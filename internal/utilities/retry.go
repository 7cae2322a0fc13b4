package utilities

import (
	"context"
	"time"
)

// RetryWithBackoff retries fn until it succeeds, maxRetry attempts are exhausted,
// retryable reports false for the returned error, or ctx is done.
// The backoff doubles each time, up to maxBackoff. The last error is returned.
func RetryWithBackoff(ctx context.Context, fn func() error, retryable func(error) bool, maxRetry int, startBackoff, maxBackoff time.Duration) error {
	if maxRetry <= 0 {
		maxRetry = 1
	}
	backoff := startBackoff
	var err error
	for attempt := 0; attempt < maxRetry; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == maxRetry-1 || (retryable != nil && !retryable(err)) {
			return err
		}
		if sErr := Sleep(ctx, backoff); sErr != nil {
			return err
		}
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
	return err
}

// Retry retries fn up to maxRetry times with a fixed delay between attempts.
func Retry(ctx context.Context, fn func() error, maxRetry int, delay time.Duration) error {
	return RetryWithBackoff(ctx, fn, nil, maxRetry, delay, delay)
}

// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
