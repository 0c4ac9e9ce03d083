// Package resilience provides a composable resilience pipeline for guarding
// remote or otherwise unreliable operations.
//
// A pipeline wraps a single operation with layered fault-tolerance
// strategies, composed in a fixed order:
//
//   - Rate Limiter (outermost): bounds call admission with a sliding-window
//     permit scheme and an optional bounded FIFO wait queue.
//
//   - Circuit Breaker: tracks a rolling failure ratio over a sampling window
//     and fast-rejects calls while open.
//
//   - Timeout: bounds execution with a cancellable deadline.
//
//   - Retry (innermost): re-invokes the operation on handled failures with
//     full-jitter exponential backoff.
//
// # Usage
//
// Build each strategy, then compose them into a long-lived pipeline that is
// reused across calls. Reuse is what makes circuit breaker and rate limiter
// state meaningfully shared:
//
//	pipeline := resilience.NewPipeline(
//	    resilience.WithName("billing-api"),
//	    resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
//	        PermitLimit: 100,
//	        Window:      time.Second,
//	    })),
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	        FailureRatio:      0.5,
//	        MinimumThroughput: 10,
//	        BreakDuration:     5 * time.Second,
//	    })),
//	    resilience.WithTimeout(resilience.NewTimeout(resilience.TimeoutConfig{
//	        Timeout: 2 * time.Second,
//	    })),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
//	        MaxAttempts: 3,
//	        BaseDelay:   100 * time.Millisecond,
//	    })),
//	)
//
//	err := pipeline.Execute(ctx, func(ctx context.Context) error {
//	    return callExternalService(ctx)
//	})
//
// For operations that return values, use the generic Run helper:
//
//	user, err := resilience.Run(ctx, pipeline, func(ctx context.Context) (*User, error) {
//	    return client.GetUser(ctx, id)
//	})
//
// # Failure classification
//
// Strategies only act on failures they are configured to handle. Mark
// retriable errors with Transient, and classify any error with KindOf.
// Cancelled outcomes (the caller's context firing) are never handled by any
// strategy and propagate immediately.
//
// # Observability
//
// Pipelines report lifecycle events (retries scheduled, breaker
// transitions, timeouts, rate-limit rejections) to an optional EventSink.
// Sinks are invoked synchronously in the calling flow; a panicking sink is
// recovered and never aborts the call.
package resilience
