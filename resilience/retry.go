package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig configures the retry strategy.
type RetryConfig struct {
	// MaxAttempts is the maximum number of retries after the initial
	// attempt. An operation that only ever returns handled failures is
	// invoked MaxAttempts+1 times in total.
	// Default: 3
	MaxAttempts int

	// BaseDelay is the backoff base. The delay before the k-th retry is
	// drawn uniformly from [0, BaseDelay*2^(k-1)), full jitter.
	// Default: 100ms
	BaseDelay time.Duration

	// MaxDelay caps the exponential term before the jitter draw.
	// Default: 30s
	MaxDelay time.Duration

	// HandleIf decides whether a failure triggers a retry. Cancelled
	// outcomes are never retried regardless of this predicate.
	// Default: HandledKinds(KindTransient, KindTimeout)
	HandleIf func(err error) bool

	// Sink receives RetryScheduled events.
	Sink EventSink

	// Clock overrides the wall clock, primarily for tests.
	Clock Clock
}

// Retry re-invokes an operation on handled failures with full-jitter
// exponential backoff.
type Retry struct {
	config   RetryConfig
	sink     EventSink
	clock    Clock
	pipeline string
}

// NewRetry creates a new retry strategy.
func NewRetry(config RetryConfig) *Retry {
	// Apply defaults
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.HandleIf == nil {
		config.HandleIf = defaultHandleIf()
	}

	return &Retry{config: config, sink: config.Sink, clock: config.Clock}
}

// Execute runs the operation, retrying handled failures until MaxAttempts
// retries are used up. Exhaustion returns the last real failure, never a
// synthetic "retries exhausted" error. Attempt state is call-local; the
// strategy itself carries no mutable state and is safe for concurrent use.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	clk := clockOf(r.clock)

	var lastErr error
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !handled(r.config.HandleIf, err) {
			return err
		}

		lastErr = err
		if attempt >= r.config.MaxAttempts {
			break
		}

		delay := r.backoff(attempt)
		r.fireRetry(RetryEvent{
			Pipeline: r.pipeline,
			Attempt:  attempt + 1,
			Delay:    delay,
			Err:      err,
		})

		if err := sleep(ctx, clk, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// backoff returns the full-jitter delay after the given zero-based attempt:
// uniform in [0, BaseDelay*2^attempt), with the exponential ceiling capped
// at MaxDelay.
func (r *Retry) backoff(attempt int) time.Duration {
	ceil := float64(r.config.BaseDelay) * math.Pow(2, float64(attempt))
	if max := float64(r.config.MaxDelay); ceil > max {
		ceil = max
	}
	if ceil < 1 {
		return 0
	}
	// #nosec G404 -- jitter is non-cryptographic timing variance.
	return time.Duration(rand.Int64N(int64(ceil)))
}

func (r *Retry) fireRetry(ev RetryEvent) {
	if r.sink == nil {
		return
	}
	fire(func() { r.sink.RetryScheduled(ev) })
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
