package internal

import (
	"context"
	"math"
	"time"
)

// Clock abstracts the passage of time so that waits on the rate budget and
// retry backoff can be observed in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep waits for d, honouring cancellation.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
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

const maxBackoffExponent = 10

// Backoff returns 2^exponent seconds, with the exponent clamped to [0, 10].
func Backoff(exponent int) time.Duration {
	if exponent < 0 {
		exponent = 0
	}
	if exponent > maxBackoffExponent {
		exponent = maxBackoffExponent
	}
	return time.Duration(math.Pow(2, float64(exponent))) * time.Second
}
