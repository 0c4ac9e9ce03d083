package resilience

import (
	"context"
	"time"
)

// Clock abstracts time for timestamps and delay scheduling so that tests
// can drive strategies deterministically.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTimer returns a timer that fires once after d.
	NewTimer(d time.Duration) Timer
}

// Timer is the portion of time.Timer the pipeline uses.
type Timer interface {
	// C returns the channel the timer fires on.
	C() <-chan time.Time

	// Stop cancels the timer. It reports whether the timer was stopped
	// before firing.
	Stop() bool
}

// SystemClock returns the wall-clock implementation used when no clock is
// configured.
func SystemClock() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) NewTimer(d time.Duration) Timer {
	return systemTimer{t: time.NewTimer(d)}
}

type systemTimer struct {
	t *time.Timer
}

func (t systemTimer) C() <-chan time.Time {
	return t.t.C
}

func (t systemTimer) Stop() bool {
	return t.t.Stop()
}

// clockOf returns c, falling back to the system clock.
func clockOf(c Clock) Clock {
	if c != nil {
		return c
	}
	return systemClock{}
}

// sleep waits for d on the given clock, returning early with ctx.Err() if
// the context is cancelled first.
func sleep(ctx context.Context, clk Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := clk.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}
