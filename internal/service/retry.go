package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// retry runs op until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. Only transient PersistenceErrors are retried.
func retry(ctx context.Context, log zerolog.Logger, name string, maxRetries uint64, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		var pe *PersistenceError
		if errors.As(err, &pe) && pe.Retryable() {
			return err
		}
		return backoff.Permanent(err)
	}, policy, func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("op", name).Int("attempt", attempt).Dur("backoff", wait).Msg("retrying persistence call")
	})
}
