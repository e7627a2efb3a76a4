package util

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/pkg/log"
)

// DoWithRetry runs action until it succeeds, sleeping between attempts and giving up with a
// MaxRetriesExceeded error after maxRetries retries. A FatalError stops the loop at once.
func DoWithRetry(ctx context.Context, actionDescription string, maxRetries int, sleepBetweenRetries time.Duration, logger log.Logger, action func(ctx context.Context) error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(sleepBetweenRetries), uint64(max(maxRetries, 0))), ctx)

	var (
		attempt int
		lastErr error
	)

	err := backoff.RetryNotify(func() error {
		logger.Debugf("%s", actionDescription)

		attempt++

		lastErr = action(ctx)

		var fatalErr FatalError
		if errors.As(lastErr, &fatalErr) {
			return backoff.Permanent(lastErr)
		}

		return lastErr
	}, policy, func(err error, wait time.Duration) {
		logger.Warnf("%s returned an error: %s. Retry %d of %d. Sleeping for %s and will try again.", actionDescription, err, attempt, maxRetries, wait)
	})

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return errors.New(ctx.Err())
	case errors.As(lastErr, new(FatalError)):
		return lastErr
	default:
		return errors.New(MaxRetriesExceeded{Description: actionDescription, MaxRetries: maxRetries})
	}
}

// MaxRetriesExceeded is returned by DoWithRetry when every attempt failed.
type MaxRetriesExceeded struct {
	Description string
	MaxRetries  int
}

func (err MaxRetriesExceeded) Error() string {
	return fmt.Sprintf("'%s' unsuccessful after %d retries", err.Description, err.MaxRetries)
}

// FatalError wraps an error that DoWithRetry must not retry.
type FatalError struct {
	Underlying error
}

func (err FatalError) Error() string {
	return err.Underlying.Error()
}
