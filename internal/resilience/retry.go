package resilience

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times with exponential backoff starting at
// baseDelay. It returns nil on the first success, the last error after
// the final attempt, or ctx.Err() if the context ends while waiting.
// Used at startup to ride out databases and brokers that are still
// coming up.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func(ctx context.Context) error) error {
	var err error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
