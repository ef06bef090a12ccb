// Package backoffpolicy supplies the retry/backoff policy spec §4.1
// requires of provider bootstrap and key refresh: base 1s, cap 60s,
// ±20% jitter, unbounded retries until the caller's context is done.
package backoffpolicy

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// New returns a fresh backoff sequence. It must not be reused across
// independent retry loops — create one per bootstrap/refresh attempt.
func New(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 60 * time.Second
	b.RandomizationFactor = 0.2
	b.Multiplier = 2
	b.MaxElapsedTime = 0 // retry until ctx is done; bounded retries are not part of spec §4.1
	return backoff.WithContext(b, ctx)
}

// Retry runs op, retrying on error using New's policy, until it succeeds
// or ctx is canceled. notify is called (may be nil) before each sleep so
// callers can log/observe retries.
func Retry(ctx context.Context, op func() error, notify func(err error, next time.Duration)) error {
	policy := New(ctx)
	return backoff.RetryNotify(op, policy, func(err error, next time.Duration) {
		if notify != nil {
			notify(err, next)
		}
	})
}
