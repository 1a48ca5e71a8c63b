package llm

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times with a fixed delay between tries. Only
// transient conditions (see Retryable) are retried; anything else surfaces
// immediately. The last error is returned when every attempt fails.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = fn()
		if last == nil {
			return nil
		}
		if !Retryable(last) {
			return last
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return last
}
