package util

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry calls fn up to maxAttempts times with exponential backoff starting at
// baseDelay and doubling after each failure. It returns nil on the first
// successful call, or the last error if all attempts fail. Errors wrapped
// with Permanent stop the loop immediately and are returned unwrapped. The
// function respects context cancellation between retries.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = b
	if maxAttempts > 0 {
		policy = backoff.WithMaxRetries(b, uint64(maxAttempts-1))
	}
	return backoff.Retry(fn, backoff.WithContext(policy, ctx))
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
