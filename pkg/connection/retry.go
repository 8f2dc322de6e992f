package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// Retry defaults, matching the keep-alive interval of the client.
const (
	// DefaultMaxAttempts is the default number of startup attempts.
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the default fixed delay between attempts.
	DefaultRetryDelay = 5 * time.Second
)

// ErrRetriesExhausted is wrapped around the last error once every attempt
// has been used.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy decides whether and when a failed startup sequence is run again.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts. Values below 1 mean one.
	MaxAttempts int

	// Backoff computes the delay before each retry.
	Backoff BackoffConfig

	// Retryable reports whether an error may be retried. Nil retries nothing.
	Retryable func(error) bool

	// OnRetry is called before each retry's delay. Optional.
	OnRetry func(attempt int, delay time.Duration, err error)

	// Clock drives retry delays. Defaults to the wall clock.
	Clock clock.Clock
}

// DefaultRetryPolicy returns three attempts with a fixed 5 second delay
// and the given predicate.
func DefaultRetryPolicy(retryable func(error) bool) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     FixedBackoff(DefaultRetryDelay),
		Retryable:   retryable,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx is done.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	backoff := NewBackoffWithConfig(p.Backoff)

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if attempt >= attempts {
			break
		}

		delay := backoff.Next()
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}

		timer := clk.Timer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), err)
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
}
