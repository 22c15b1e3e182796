package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryOptions contains configuration for retry behavior.
type RetryOptions struct {
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// GetNotifyRetryOptions returns retry options for rate limited Discord calls.
func GetNotifyRetryOptions() RetryOptions {
	return RetryOptions{
		MaxElapsedTime:  60 * time.Second,
		InitialInterval: 1 * time.Second,
		MaxInterval:     10 * time.Second,
		MaxRetries:      5,
	}
}

// GetFetchRetryOptions returns retry options for game page fetches.
func GetFetchRetryOptions() RetryOptions {
	return RetryOptions{
		MaxElapsedTime:  30 * time.Second,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxRetries:      3,
	}
}

// WithRetry executes the given operation with exponential backoff using provided options.
func WithRetry[T any](ctx context.Context, operation func() (T, error), opts RetryOptions) (T, error) {
	return WithRetryIf(ctx, operation, opts, func(error) bool { return true })
}

// WithRetryIf is WithRetry that only retries errors accepted by retryable.
// Other errors are returned immediately.
func WithRetryIf[T any](
	ctx context.Context, operation func() (T, error), opts RetryOptions, retryable func(error) bool,
) (T, error) {
	var result T

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(opts.MaxElapsedTime),
		backoff.WithInitialInterval(opts.InitialInterval),
		backoff.WithMaxInterval(opts.MaxInterval),
	), opts.MaxRetries)

	backoffOperation := func() error {
		var err error

		result, err = operation()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	err := backoff.Retry(backoffOperation, backoff.WithContext(b, ctx))

	return result, err
}
