package resilience

import (
	"context"
	"errors"
)

// Kind classifies a failure for strategy handling decisions.
type Kind int

const (
	// KindUnknown is an application failure outside every strategy's
	// handled set. It passes through all layers untouched.
	KindUnknown Kind = iota
	// KindTransient is a retriable failure marked with Transient.
	KindTransient
	// KindTimeout is a failure produced by the timeout strategy.
	KindTimeout
	// KindRateLimited is a rejection produced by the rate limiter.
	KindRateLimited
	// KindCircuitOpen is a rejection produced by an open circuit breaker.
	KindCircuitOpen
	// KindCancelled is a caller-initiated abort. It is never handled by
	// any strategy and always propagates immediately.
	KindCancelled
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate-limited"
	case KindCircuitOpen:
		return "circuit-open"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// KindOf classifies an error into a failure kind.
//
// Bare context.Canceled and context.DeadlineExceeded classify as
// KindCancelled: they come from the caller's own context. The pipeline's
// timeout strategy reports its expiry as a TimeoutError, which classifies
// as KindTimeout.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	switch {
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrCircuitOpen):
		return KindCircuitOpen
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return KindTransient
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}

	return KindUnknown
}

// HandledKinds returns a predicate reporting whether an error's kind is in
// the given set. It is the building block for per-strategy handled sets.
func HandledKinds(kinds ...Kind) func(error) bool {
	set := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return func(err error) bool {
		return set[KindOf(err)]
	}
}

// defaultHandleIf is the handled set shared by retry and circuit breaker
// when no predicate is configured.
func defaultHandleIf() func(error) bool {
	return HandledKinds(KindTransient, KindTimeout)
}

// handled reports whether a strategy should act on err. Cancelled outcomes
// are never handled, regardless of the configured predicate.
func handled(handleIf func(error) bool, err error) bool {
	if err == nil {
		return false
	}
	if KindOf(err) == KindCancelled {
		return false
	}
	return handleIf(err)
}
