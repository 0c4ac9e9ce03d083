// Package health exposes the state of resilience pipelines as health
// checks.
//
// A Checker is any component that can report its health status. The Status
// type represents the health state: Healthy, Degraded, or Unhealthy.
//
// # Pipeline Checks
//
// BreakerChecker maps circuit breaker state onto health status: a closed
// circuit is healthy, a probing one degraded, an open one unhealthy.
// LimiterChecker reports rate limiter saturation.
//
//	agg := health.NewAggregator()
//	agg.Register("payments", health.NewBreakerChecker("payments", pipeline.CircuitBreaker()))
//	agg.Register("payments-limiter", health.NewLimiterChecker("payments-limiter", pipeline.RateLimiter()))
//
//	results := agg.CheckAll(ctx)
//	overall := agg.OverallStatus(results)
//
// # HTTP Endpoints
//
// The package provides HTTP handlers for common health check patterns:
//
//	// Liveness probe (for Kubernetes)
//	http.Handle("/healthz", health.LivenessHandler())
//
//	// Readiness probe with pipeline checks
//	http.Handle("/readyz", health.ReadinessHandler(agg))
//
//	// Detailed health status
//	http.Handle("/health", health.DetailedHandler(agg))
package health
