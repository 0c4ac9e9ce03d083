package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/bulwark/resilience"
)

func ExampleNewPipeline() {
	pipeline := resilience.NewPipeline(
		resilience.WithName("payments"),
		resilience.WithTimeout(resilience.NewTimeout(resilience.TimeoutConfig{
			Timeout: 2 * time.Second,
		})),
		resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
		})),
	)

	attempts := 0
	err := pipeline.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return resilience.Transient(errors.New("connection reset"))
		}
		return nil
	})

	fmt.Println("error:", err)
	fmt.Println("attempts:", attempts)
	// Output:
	// error: <nil>
	// attempts: 3
}

func ExampleRun() {
	pipeline := resilience.NewPipeline(
		resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
		})),
	)

	price, err := resilience.Run(context.Background(), pipeline, func(ctx context.Context) (int, error) {
		return 1299, nil
	})

	fmt.Println(price, err)
	// Output:
	// 1299 <nil>
}

func ExampleNewCircuitBreaker() {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureRatio:      0.5,
		MinimumThroughput: 2,
		BreakDuration:     time.Minute,
	})

	ctx := context.Background()
	unavailable := resilience.Transient(errors.New("service unavailable"))

	// Two handled failures meet the throughput floor at ratio 1.0.
	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error {
			return unavailable
		})
	}

	fmt.Println("state:", cb.State())

	err := cb.Execute(ctx, func(ctx context.Context) error {
		return nil // never runs
	})
	fmt.Println("rejected:", errors.Is(err, resilience.ErrCircuitOpen))
	// Output:
	// state: open
	// rejected: true
}

func ExampleTransient() {
	err := resilience.Transient(errors.New("connection refused"))

	fmt.Println(resilience.KindOf(err))
	// Output:
	// transient
}

func ExampleHandledKinds() {
	// Retry on transient and rate-limited failures, but not timeouts.
	retry := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts: 3,
		HandleIf:    resilience.HandledKinds(resilience.KindTransient, resilience.KindRateLimited),
	})

	calls := 0
	err := retry.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("bad request") // unhandled: no retry
	})

	fmt.Println("calls:", calls)
	fmt.Println("error:", err)
	// Output:
	// calls: 1
	// error: bad request
}
