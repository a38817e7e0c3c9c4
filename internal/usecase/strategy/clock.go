package strategy

import (
	"context"
	"time"
)

// Clock abstracts time so interval-driven strategies can be tested
// without wall-clock waits.
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// After returns a channel that fires once d has elapsed
	After(d time.Duration) <-chan time.Time
}

// SystemClock returns the wall clock
func SystemClock() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// sleep waits for d or until the context is cancelled, whichever comes
// first. Cancellation takes effect at this suspension point.
func sleep(ctx context.Context, c Clock, d time.Duration) error {
	if d <= 0 {
		// Still honor a cancelled context
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.After(d):
		return nil
	}
}
