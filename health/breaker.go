package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/bulwark/resilience"
)

// BreakerChecker reports a circuit breaker's state as a health status. A
// closed circuit is healthy, a probing (half-open) one degraded, and an open
// one unhealthy, so an open circuit takes the guarded endpoint out of
// readiness.
type BreakerChecker struct {
	name    string
	breaker *resilience.CircuitBreaker
}

// NewBreakerChecker creates a checker for the given circuit breaker.
func NewBreakerChecker(name string, cb *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: cb}
}

// Name returns the name of this checker.
func (c *BreakerChecker) Name() string {
	return c.name
}

// Check reports the breaker's current state.
func (c *BreakerChecker) Check(ctx context.Context) Result {
	select {
	case <-ctx.Done():
		return Unhealthy("context cancelled", ctx.Err())
	default:
	}

	if c.breaker == nil {
		return Healthy("no circuit breaker configured")
	}

	m := c.breaker.Metrics()
	details := map[string]any{
		"state":    m.State.String(),
		"samples":  m.Samples,
		"failures": m.Failures,
	}
	if !m.LastOpenedAt.IsZero() {
		details["last_opened_at"] = m.LastOpenedAt
	}

	switch m.State {
	case resilience.StateOpen:
		return Unhealthy("circuit open", resilience.ErrCircuitOpen).WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded("circuit half-open, probing").WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("circuit closed, %d failures in window", m.Failures)).WithDetails(details)
	}
}

// LimiterChecker reports rate limiter saturation. A limiter with queued
// callers is degraded; it never reports unhealthy, since throttling is
// expected behavior rather than a fault.
type LimiterChecker struct {
	name    string
	limiter *resilience.RateLimiter
}

// NewLimiterChecker creates a checker for the given rate limiter.
func NewLimiterChecker(name string, rl *resilience.RateLimiter) *LimiterChecker {
	return &LimiterChecker{name: name, limiter: rl}
}

// Name returns the name of this checker.
func (c *LimiterChecker) Name() string {
	return c.name
}

// Check reports the limiter's current saturation.
func (c *LimiterChecker) Check(ctx context.Context) Result {
	select {
	case <-ctx.Done():
		return Unhealthy("context cancelled", ctx.Err())
	default:
	}

	if c.limiter == nil {
		return Healthy("no rate limiter configured")
	}

	m := c.limiter.Metrics()
	cfg := c.limiter.Config()
	details := map[string]any{
		"in_flight":    m.InFlight,
		"queued":       m.Queued,
		"permit_limit": cfg.PermitLimit,
		"window":       cfg.Window.String(),
	}

	if m.Queued > 0 {
		return Degraded(fmt.Sprintf("rate limiter saturated, %d callers queued", m.Queued)).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("%d of %d permits in flight", m.InFlight, cfg.PermitLimit)).WithDetails(details)
}

// PipelineChecker aggregates the breaker and limiter checks of one pipeline
// under a single name.
type PipelineChecker struct {
	name     string
	pipeline *resilience.Pipeline
}

// NewPipelineChecker creates a checker covering the pipeline's strategies.
func NewPipelineChecker(p *resilience.Pipeline) *PipelineChecker {
	return &PipelineChecker{name: p.Name(), pipeline: p}
}

// Name returns the pipeline name.
func (c *PipelineChecker) Name() string {
	return c.name
}

// Check reports the worst status among the pipeline's strategies.
func (c *PipelineChecker) Check(ctx context.Context) Result {
	breaker := NewBreakerChecker(c.name, c.pipeline.CircuitBreaker()).Check(ctx)
	limiter := NewLimiterChecker(c.name, c.pipeline.RateLimiter()).Check(ctx)

	worst := breaker
	if limiter.Status > worst.Status {
		worst = limiter
	}

	details := map[string]any{
		"breaker": breaker.Message,
		"limiter": limiter.Message,
	}
	return worst.WithDetails(details)
}
