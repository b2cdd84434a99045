package adapter

import (
	"context"
	"fmt"
	"time"
)

// Backoff bounds. The delay doubles per attempt from BaseBackoff up to MaxBackoff.
const (
	BaseBackoff = 500 * time.Millisecond
	MaxBackoff  = 30 * time.Second
)

// Backoff returns the delay before retry attempt n (n >= 1).
func Backoff(n int) time.Duration {
	d := BaseBackoff
	for i := 1; i < n && d < MaxBackoff; i++ {
		d *= 2
	}
	return min(d, MaxBackoff)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error { return &permanentError{err} }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return "non-retriable error: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. It stops early on success, on a Permanent error, or when ctx
// ends. Errors are prefixed with name.
func Retry(ctx context.Context, name string, retries int, fn func(context.Context) error) error {
	attempts := 1 + retries
	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(Backoff(i)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p, ok := lastErr.(*permanentError); ok {
			return fmt.Errorf("%s: %w", name, p)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
