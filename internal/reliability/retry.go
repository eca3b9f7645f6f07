// Package reliability shapes the retry cadence for collaborators that may
// be slow to come up, such as the database at boot.
package reliability

import (
	"context"
	"time"
)

// Backoff computes the capped exponential delay before retry attempt n
// (zero-based).
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
