package resilience

import "time"

// RetryEvent describes a retry scheduled after a handled failure.
type RetryEvent struct {
	// Pipeline is the name of the owning pipeline, if any.
	Pipeline string

	// Attempt is the 1-based number of the upcoming retry.
	Attempt int

	// Delay is the computed backoff before the retry runs.
	Delay time.Duration

	// Err is the failure that triggered the retry.
	Err error
}

// BreakerEvent describes a circuit breaker state transition.
type BreakerEvent struct {
	Pipeline string

	// From and To are the states on either side of the transition.
	From State
	To   State

	// BreakDuration is how long the circuit will stay open. Set only on
	// transitions to StateOpen.
	BreakDuration time.Duration
}

// TimeoutEvent describes an operation cancelled by the timeout strategy.
type TimeoutEvent struct {
	Pipeline string

	// Timeout is the configured deadline that expired.
	Timeout time.Duration
}

// RejectedEvent describes a call rejected by the rate limiter.
type RejectedEvent struct {
	Pipeline string

	// Limit and Window are the limiter's configured capacity.
	Limit  int
	Window time.Duration
}

// EventSink receives pipeline lifecycle events.
//
// Methods are invoked synchronously in the calling flow, before the outcome
// is returned to the next-outer layer. Implementations must be safe for
// concurrent use and must return quickly; a panicking sink is recovered and
// never aborts pipeline execution. Sinks must not call back into the
// strategy that fired the event.
type EventSink interface {
	// RetryScheduled fires before each backoff wait.
	RetryScheduled(RetryEvent)

	// BreakerOpened fires when the circuit transitions to open.
	BreakerOpened(BreakerEvent)

	// BreakerHalfOpened fires when the circuit begins probing.
	BreakerHalfOpened(BreakerEvent)

	// BreakerClosed fires when the circuit recovers.
	BreakerClosed(BreakerEvent)

	// TimedOut fires when the timeout strategy expires a call.
	TimedOut(TimeoutEvent)

	// RateLimitRejected fires when the rate limiter rejects a call.
	RateLimitRejected(RejectedEvent)
}

// NoopSink discards all events. Embed it to implement a partial sink.
type NoopSink struct{}

func (NoopSink) RetryScheduled(RetryEvent)     {}
func (NoopSink) BreakerOpened(BreakerEvent)    {}
func (NoopSink) BreakerHalfOpened(BreakerEvent) {}
func (NoopSink) BreakerClosed(BreakerEvent)    {}
func (NoopSink) TimedOut(TimeoutEvent)         {}
func (NoopSink) RateLimitRejected(RejectedEvent) {}

var _ EventSink = NoopSink{}

// fire invokes fn, recovering any panic so a misbehaving sink cannot abort
// pipeline execution.
func fire(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}
