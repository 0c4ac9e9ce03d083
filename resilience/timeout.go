package resilience

import (
	"context"
	"time"
)

// TimeoutConfig configures the timeout strategy.
type TimeoutConfig struct {
	// Timeout is the maximum duration for the wrapped operation.
	// Default: 30s
	Timeout time.Duration

	// Sink receives TimedOut events.
	Sink EventSink

	// Clock overrides the wall clock, primarily for tests.
	Clock Clock
}

// Timeout bounds the wrapped operation with a cancellable deadline.
type Timeout struct {
	config   TimeoutConfig
	sink     EventSink
	clock    Clock
	pipeline string
}

// NewTimeout creates a new timeout strategy.
func NewTimeout(config TimeoutConfig) *Timeout {
	// Apply defaults
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Timeout{config: config, sink: config.Sink, clock: config.Clock}
}

// Execute races the operation against the configured deadline.
//
// The operation always receives a context derived from the caller's, so
// inner code observes the deadline when it fires and still honors outer
// cancellation. An expiry returns a TimeoutError, distinct from
// caller-initiated cancellation.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(opCtx)
	}()

	timer := clockOf(t.clock).NewTimer(t.config.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C():
		cancel()
		t.fireTimeout()
		return &TimeoutError{Timeout: t.config.Timeout}
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

func (t *Timeout) fireTimeout() {
	if t.sink == nil {
		return
	}
	ev := TimeoutEvent{Pipeline: t.pipeline, Timeout: t.config.Timeout}
	fire(func() { t.sink.TimedOut(ev) })
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}
