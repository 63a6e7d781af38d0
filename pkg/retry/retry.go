// Package retry waits for a condition that is expected to become true shortly,
// such as a freshly created stream becoming visible to a new connection.
//
// It is not meant to paper over failures: errors wrapped with Stop end the loop
// immediately, so connection and authorization problems still fail fast.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// stopError marks an error as permanent.
type stopError struct {
	err error
}

func (s stopError) Error() string { return s.err.Error() }
func (s stopError) Unwrap() error { return s.err }

// Stop wraps err so that Do returns it without further attempts.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return stopError{err: err}
}

// Do calls fn until it returns nil, returns an error wrapped with Stop, or
// maxAttempts calls have been made. The delay between attempts respects ctx.
func Do(ctx context.Context, maxAttempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	// This will hold the error that will be returned if all attempts fail.
	var errFinal error

	for i := 0; i < maxAttempts; i++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		// Permanent errors are returned unwrapped.
		var stop stopError
		if errors.As(err, &stop) {
			return stop.err
		}

		// Record the error. If this is the final attempt, this error will be returned.
		errFinal = err
		// Don't execute the waiting code if this is the last iteration.
		if i == maxAttempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("all %d attempts failed, last error: %w", maxAttempts, errFinal)
}

// Attempts converts a total wait budget into an attempt count for the given delay.
// A non-positive budget means a single attempt.
func Attempts(budget, delay time.Duration) int {
	if budget <= 0 || delay <= 0 {
		return 1
	}
	return int(budget/delay) + 1
}
