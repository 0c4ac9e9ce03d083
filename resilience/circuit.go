package resilience

import (
	"context"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is rejecting all requests.
	StateOpen
	// StateHalfOpen means the circuit admits a single probe to test
	// whether the guarded resource recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// FailureRatio is the fraction of handled failures within the
	// sampling window that opens the circuit.
	// Default: 0.5
	FailureRatio float64

	// SamplingDuration bounds the rolling window of recorded outcomes.
	// Default: 30s
	SamplingDuration time.Duration

	// MinimumThroughput is the minimum number of sampled outcomes before
	// the failure ratio is evaluated.
	// Default: 10
	MinimumThroughput int

	// BreakDuration is how long the circuit stays open before probing.
	// Default: 5s
	BreakDuration time.Duration

	// HandleIf decides which failures count toward the ratio. Successes
	// and handled failures both count toward throughput; unhandled and
	// cancelled outcomes leave the window untouched.
	// Default: HandledKinds(KindTransient, KindTimeout)
	HandleIf func(err error) bool

	// Sink receives breaker transition events.
	Sink EventSink

	// Clock overrides the wall clock, primarily for tests.
	Clock Clock
}

// sample is one recorded outcome in the rolling window.
type sample struct {
	at      time.Time
	failure bool
}

// CircuitBreaker implements the circuit breaker pattern with a rolling
// failure-ratio window. A single instance guards one resource and is shared
// by all calls through the owning pipeline.
type CircuitBreaker struct {
	config   CircuitBreakerConfig
	sink     EventSink
	clock    Clock
	pipeline string

	mu           sync.Mutex
	state        State
	window       []sample
	lastOpenedAt time.Time
	probing      bool
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	// Apply defaults
	if config.FailureRatio <= 0 || config.FailureRatio > 1 {
		config.FailureRatio = 0.5
	}
	if config.SamplingDuration <= 0 {
		config.SamplingDuration = 30 * time.Second
	}
	if config.MinimumThroughput <= 0 {
		config.MinimumThroughput = 10
	}
	if config.BreakDuration <= 0 {
		config.BreakDuration = 5 * time.Second
	}
	if config.HandleIf == nil {
		config.HandleIf = defaultHandleIf()
	}

	return &CircuitBreaker{
		config: config,
		sink:   config.Sink,
		clock:  config.Clock,
		state:  StateClosed,
	}
}

// Execute runs the operation through the circuit breaker. While open, calls
// are rejected with an OpenStateError without invoking the operation.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = op(ctx)
	cb.record(err, probe)
	return err
}

// admit decides whether a call may proceed. It reports whether the admitted
// call is the half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := clockOf(cb.clock).Now()

	switch cb.stateLocked(now) {
	case StateOpen:
		return false, &OpenStateError{Until: cb.config.BreakDuration - now.Sub(cb.lastOpenedAt)}
	case StateHalfOpen:
		if cb.probing {
			return false, &OpenStateError{}
		}
		cb.probing = true
		return true, nil
	}

	return false, nil
}

// record accounts for a completed call's outcome.
func (cb *CircuitBreaker) record(err error, probe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := clockOf(cb.clock).Now()
	state := cb.stateLocked(now)

	if probe {
		// The call was admitted as the half-open probe. A stale state
		// means the breaker was reset underneath it; drop the outcome.
		if state != StateHalfOpen {
			return
		}
		switch {
		case err == nil, KindOf(err) != KindCancelled && !cb.config.HandleIf(err):
			// Success or unhandled outcome: the resource answered.
			cb.transitionLocked(StateClosed, now)
		case KindOf(err) == KindCancelled:
			// The caller aborted the probe; it proves nothing either
			// way. Free the slot for the next caller.
			cb.probing = false
		default:
			cb.transitionLocked(StateOpen, now)
		}
		return
	}

	// Calls admitted while closed only count if the breaker is still
	// closed; outcomes from before a trip belong to the previous window.
	if state != StateClosed {
		return
	}

	switch {
	case err == nil:
		cb.window = append(cb.window, sample{at: now})
	case handled(cb.config.HandleIf, err):
		cb.window = append(cb.window, sample{at: now, failure: true})
	default:
		return
	}

	cb.pruneLocked(now)

	total := len(cb.window)
	if total < cb.config.MinimumThroughput {
		return
	}
	failures := 0
	for _, s := range cb.window {
		if s.failure {
			failures++
		}
	}
	if float64(failures)/float64(total) >= cb.config.FailureRatio {
		cb.transitionLocked(StateOpen, now)
	}
}

// stateLocked returns the current state, lazily realizing the open →
// half-open transition once the break duration has elapsed.
func (cb *CircuitBreaker) stateLocked(now time.Time) State {
	if cb.state == StateOpen && now.Sub(cb.lastOpenedAt) >= cb.config.BreakDuration {
		cb.transitionLocked(StateHalfOpen, now)
	}
	return cb.state
}

func (cb *CircuitBreaker) transitionLocked(to State, now time.Time) {
	from := cb.state
	cb.state = to

	switch to {
	case StateOpen:
		cb.lastOpenedAt = now
		cb.window = cb.window[:0]
		cb.probing = false
	case StateHalfOpen:
		cb.probing = false
	case StateClosed:
		cb.window = cb.window[:0]
		cb.probing = false
	}

	cb.fireTransition(from, to)
}

// pruneLocked drops samples older than the sampling window. The window is
// append-ordered by time.
func (cb *CircuitBreaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-cb.config.SamplingDuration)
	i := 0
	for i < len(cb.window) && !cb.window[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		cb.window = append(cb.window[:0], cb.window[i:]...)
	}
}

func (cb *CircuitBreaker) fireTransition(from, to State) {
	if cb.sink == nil || from == to {
		return
	}

	ev := BreakerEvent{Pipeline: cb.pipeline, From: from, To: to}
	switch to {
	case StateOpen:
		ev.BreakDuration = cb.config.BreakDuration
		fire(func() { cb.sink.BreakerOpened(ev) })
	case StateHalfOpen:
		fire(func() { cb.sink.BreakerHalfOpened(ev) })
	case StateClosed:
		fire(func() { cb.sink.BreakerClosed(ev) })
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked(clockOf(cb.clock).Now())
}

// Reset forces the circuit back to closed with an empty window.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed, clockOf(cb.clock).Now())
		return
	}
	cb.window = cb.window[:0]
}

// CircuitBreakerMetrics contains a snapshot of breaker statistics.
type CircuitBreakerMetrics struct {
	State        State
	Samples      int
	Failures     int
	LastOpenedAt time.Time
}

// Metrics returns a snapshot of the breaker's current state and window.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := clockOf(cb.clock).Now()
	state := cb.stateLocked(now)
	cb.pruneLocked(now)

	failures := 0
	for _, s := range cb.window {
		if s.failure {
			failures++
		}
	}

	return CircuitBreakerMetrics{
		State:        state,
		Samples:      len(cb.window),
		Failures:     failures,
		LastOpenedAt: cb.lastOpenedAt,
	}
}

// Config returns the circuit breaker configuration.
func (cb *CircuitBreaker) Config() CircuitBreakerConfig {
	return cb.config
}
