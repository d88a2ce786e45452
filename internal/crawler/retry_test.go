package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "gearshed/catalogworker/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestWithRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRetriesNetworkError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		if calls == 1 {
			return pkgerrors.NewNetwork("url", "timeout", errors.New("timeout"))
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	failure := pkgerrors.NewNetwork("url", "timeout", errors.New("timeout"))
	err := WithRetry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return failure
	})
	assert.Error(t, err)
	assert.Equal(t, failure, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryValidationFailsImmediately(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return pkgerrors.NewValidation("url", "product name not found")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRateLimitFailsImmediately(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return pkgerrors.NewRateLimit("url", time.Minute)
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := WithRetry(ctx, 3, time.Millisecond, func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}
