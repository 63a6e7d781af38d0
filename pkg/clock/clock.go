// Package clock provides the monotonic timestamps used to correlate writer and
// reader observations.
//
// Timestamps are float64 seconds read from the system-wide monotonic clock, so
// readings taken in different processes on the same host are comparable. They
// carry no wall-clock meaning and must only be subtracted from each other.
package clock

import (
	"context"
	"time"
)

// Now returns the current monotonic time in seconds.
func Now() float64 {
	return now()
}

// Seconds converts a duration into the float seconds used by Now.
func Seconds(d time.Duration) float64 {
	return d.Seconds()
}

// Duration converts float seconds into a time.Duration.
func Duration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// Sleep suspends the caller for d, or until the context is done.
// A non-positive d returns immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop() // Cleanup the timer. `time.After` does not allow this optimization.
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
