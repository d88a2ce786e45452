package crawler

import (
	"context"
	"time"

	pkgerrors "gearshed/catalogworker/pkg/errors"
)

// WithRetry runs fn up to maxAttempts times, sleeping delay between attempts.
// Non-retryable classifications (validation, rate limit) fail immediately.
// The retry policy stays declarative here and is shared by the crawl and
// image pipelines.
func WithRetry(ctx context.Context, maxAttempts int, delay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !pkgerrors.Retryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
