// Package retry wraps calls to dependent services with bounded exponential
// backoff and supervises their reachability in the background.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retried call. MaxAttempts counts the first try.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy is three attempts starting at 200ms.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialInterval: 200 * time.Millisecond, MaxInterval: 2 * time.Second}
}

func (p Policy) backoff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// Permanent marks err as not worth retrying. Do returns it unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return op(ctx)
	}, p.backoff(ctx))
}

// WaitFor blocks until check succeeds, trying attempts times with a constant
// delay in between. Used at startup before a service begins serving.
func WaitFor(ctx context.Context, logger *slog.Logger, name string, attempts int, delay time.Duration, check func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	try := 0
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)), ctx)
	err := backoff.RetryNotify(func() error {
		try++
		return check(ctx)
	}, b, func(err error, next time.Duration) {
		logger.Info("waiting for dependency", "dependency", name, "attempt", try, "of", attempts, "error", err)
	})
	if err != nil {
		return fmt.Errorf("%s unavailable after %d attempts: %w", name, try, err)
	}
	logger.Info("dependency ready", "dependency", name)
	return nil
}
