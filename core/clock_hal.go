package core

import (
	"context"
	"time"
)

// Clock is the monotonic timer/delay capability. Durations are measured
// from an arbitrary boot instant. Sleep treats its argument as a floor:
// it never returns early, and jitter only ever lengthens the wait. Step
// timing relies on that (an early pulse over-speeds the motor, a late one
// merely slows it).
type Clock interface {
	// Now returns the monotonic time since boot.
	Now() time.Duration

	// Sleep suspends the calling task for at least d. It returns early
	// only when ctx is cancelled, reporting ctx.Err().
	Sleep(ctx context.Context, d time.Duration) error
}

// WallClock implements Clock on the host using the Go runtime clock.
type WallClock struct {
	start time.Time
}

// NewWallClock returns a Clock anchored at the current instant.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

func (c *WallClock) Now() time.Duration {
	return time.Since(c.start)
}

func (c *WallClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
