package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for pipeline outcomes. Structured error types below match
// these through errors.Is.
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrTimeout is returned when the timeout strategy expires a call.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrRateLimited is returned when the rate limiter rejects a call.
	ErrRateLimited = errors.New("resilience: rate limit exceeded")
)

// TransientError marks an error as a retriable transient failure.
// Wrap errors with Transient to opt them into the default handled set of
// the retry and circuit breaker strategies.
type TransientError struct {
	Err error
}

// Transient wraps err as a transient failure. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// OpenStateError reports a call rejected without invoking the operation
// because the circuit breaker is open (or half-open with its probe taken).
type OpenStateError struct {
	// Until is the remaining break duration at rejection time. Zero when
	// the circuit is half-open and the probe slot is already taken.
	Until time.Duration
}

func (e *OpenStateError) Error() string {
	if e.Until > 0 {
		return fmt.Sprintf("resilience: circuit breaker is open (retry in %s)", e.Until)
	}
	return "resilience: circuit breaker is open"
}

func (e *OpenStateError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// TimeoutError reports an operation cancelled by the timeout strategy.
// It is distinct from caller-initiated cancellation.
type TimeoutError struct {
	// Timeout is the configured deadline that expired.
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("resilience: operation timed out after %s", e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// RateLimitError reports a call rejected by the rate limiter because the
// window was exhausted and the wait queue was full.
type RateLimitError struct {
	// Limit is the configured permit limit.
	Limit int

	// Window is the configured sliding window length.
	Window time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("resilience: rate limit exceeded (%d permits per %s)", e.Limit, e.Window)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
