package syncer

import (
	"context"
	"fmt"
	"time"
)

// attempt runs op up to maxAttempts times, sleeping delay between
// attempts (zero delay retries immediately). The operation must be
// idempotent. Returns nil on the first success, or the last error
// wrapped with the attempt count.
func attempt(ctx context.Context, maxAttempts int, delay time.Duration, op func(context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = op(ctx); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
