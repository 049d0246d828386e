package executor

import (
	"context"
	"time"
)

// SleepFunc blocks for d or until ctx ends, returning ctx.Err() in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// maxBackoff caps a single wait. Doubling saturates here instead of overflowing.
const maxBackoff = time.Hour

// backoff is the wait before attempt (zero based); attempt 0 never waits.
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d >= maxBackoff/2 {
			return maxBackoff
		}
		d *= 2
	}
	return min(d, maxBackoff)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
