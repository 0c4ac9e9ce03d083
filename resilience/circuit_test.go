package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func newTestBreaker(clk Clock, sink EventSink) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		FailureRatio:      0.5,
		SamplingDuration:  30 * time.Second,
		MinimumThroughput: 3,
		BreakDuration:     5 * time.Second,
		Sink:              sink,
		Clock:             clk,
	})
}

func failCall(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func(ctx context.Context) error {
		return Transient(errors.New("service unavailable"))
	})
}

func successCall(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.config.FailureRatio != 0.5 {
		t.Errorf("FailureRatio = %v, want 0.5", cb.config.FailureRatio)
	}
	if cb.config.SamplingDuration != 30*time.Second {
		t.Errorf("SamplingDuration = %v, want 30s", cb.config.SamplingDuration)
	}
	if cb.config.MinimumThroughput != 10 {
		t.Errorf("MinimumThroughput = %d, want 10", cb.config.MinimumThroughput)
	}
	if cb.config.BreakDuration != 5*time.Second {
		t.Errorf("BreakDuration = %v, want 5s", cb.config.BreakDuration)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OpensAtFailureRatio(t *testing.T) {
	cb := newTestBreaker(newFakeClock(), nil)

	// 2 failures + 1 success: 3 samples, ratio 0.67 >= 0.5.
	_ = failCall(cb)
	_ = failCall(cb)
	if cb.State() != StateClosed {
		t.Fatalf("state = %v before minimum throughput, want closed", cb.State())
	}
	_ = successCall(cb)

	if cb.State() != StateOpen {
		t.Errorf("state = %v after ratio exceeded, want open", cb.State())
	}
}

func TestCircuitBreaker_StaysClosedBelowRatio(t *testing.T) {
	cb := newTestBreaker(newFakeClock(), nil)

	// 1 failure + 2 successes: ratio 0.33 < 0.5.
	_ = failCall(cb)
	_ = successCall(cb)
	_ = successCall(cb)

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_MinimumThroughputGate(t *testing.T) {
	cb := newTestBreaker(newFakeClock(), nil)

	// Two failures is ratio 1.0 but below the throughput floor.
	_ = failCall(cb)
	_ = failCall(cb)

	if cb.State() != StateClosed {
		t.Errorf("state = %v with 2 samples, want closed", cb.State())
	}
}

func TestCircuitBreaker_OpenRejectsWithoutInvoking(t *testing.T) {
	clk := newFakeClock()
	cb := newTestBreaker(clk, nil)

	_ = failCall(cb)
	_ = failCall(cb)
	_ = failCall(cb)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		t.Error("operation must not run while the circuit is open")
		return nil
	})

	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}

	var open *OpenStateError
	if !errors.As(err, &open) {
		t.Fatal("rejection should carry an OpenStateError")
	}
	if open.Until <= 0 || open.Until > 5*time.Second {
		t.Errorf("Until = %v, want within the break duration", open.Until)
	}
}

func TestCircuitBreaker_HalfOpenAfterBreak(t *testing.T) {
	clk := newFakeClock()
	cb := newTestBreaker(clk, nil)

	_ = failCall(cb)
	_ = failCall(cb)
	_ = failCall(cb)

	clk.Advance(5 * time.Second)

	if cb.State() != StateHalfOpen {
		t.Errorf("state = %v after break elapsed, want half-open", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	clk := newFakeClock()
	cb := newTestBreaker(clk, nil)

	_ = failCall(cb)
	_ = failCall(cb)
	_ = failCall(cb)
	clk.Advance(5 * time.Second)

	probe, err := cb.admit()
	if err != nil || !probe {
		t.Fatalf("first admission = (%v, %v), want probe admitted", probe, err)
	}

	// Every other caller during the probe is rejected like open.
	if _, err := cb.admit(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second admission error = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_ProbeSuccessCloses(t *testing.T) {
	clk := newFakeClock()
	cb := newTestBreaker(clk, nil)

	_ = failCall(cb)
	_ = failCall(cb)
	_ = failCall(cb)
	clk.Advance(5 * time.Second)

	if err := successCall(cb); err != nil {
		t.Fatalf("probe error = %v", err)
	}

	if cb.State() != StateClosed {
		t.Errorf("state = %v after successful probe, want closed", cb.State())
	}
	if m := cb.Metrics(); m.Samples != 0 {
		t.Errorf("Samples = %d after close, want empty window", m.Samples)
	}
}

func TestCircuitBreaker_ProbeFailureReopens(t *testing.T) {
	clk := newFakeClock()
	cb := newTestBreaker(clk, nil)

	_ = failCall(cb)
	_ = failCall(cb)
	_ = failCall(cb)
	clk.Advance(5 * time.Second)

	_ = failCall(cb)

	if cb.State() != StateOpen {
		t.Fatalf("state = %v after failed probe, want open", cb.State())
	}

	// The break restarts from the failed probe.
	clk.Advance(4 * time.Second)
	if cb.State() != StateOpen {
		t.Errorf("state = %v before fresh break elapsed, want open", cb.State())
	}
	clk.Advance(time.Second)
	if cb.State() != StateHalfOpen {
		t.Errorf("state = %v after fresh break elapsed, want half-open", cb.State())
	}
}

func TestCircuitBreaker_ProbeUnhandledOutcomeCloses(t *testing.T) {
	clk := newFakeClock()
	cb := newTestBreaker(clk, nil)

	_ = failCall(cb)
	_ = failCall(cb)
	_ = failCall(cb)
	clk.Advance(5 * time.Second)

	// The probe reached the resource and got an application error the
	// breaker does not handle: the resource is up.
	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("validation failed")
	})

	if cb.State() != StateClosed {
		t.Errorf("state = %v after unhandled probe outcome, want closed", cb.State())
	}
}

func TestCircuitBreaker_UnhandledOutcomesNotSampled(t *testing.T) {
	cb := newTestBreaker(newFakeClock(), nil)

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("validation failed")
		})
	}

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
	if m := cb.Metrics(); m.Samples != 0 {
		t.Errorf("Samples = %d, want 0 for unhandled outcomes", m.Samples)
	}
}

func TestCircuitBreaker_WindowPrunesOldSamples(t *testing.T) {
	clk := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureRatio:      0.5,
		SamplingDuration:  10 * time.Second,
		MinimumThroughput: 3,
		BreakDuration:     5 * time.Second,
		Clock:             clk,
	})

	_ = failCall(cb)
	_ = failCall(cb)

	// The old failures age out of the sampling window.
	clk.Advance(11 * time.Second)
	_ = failCall(cb)

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed after old samples expired", cb.State())
	}
	if m := cb.Metrics(); m.Samples != 1 {
		t.Errorf("Samples = %d, want 1", m.Samples)
	}
}

func TestCircuitBreaker_TransitionEvents(t *testing.T) {
	clk := newFakeClock()
	sink := &captureSink{}
	cb := newTestBreaker(clk, sink)

	_ = failCall(cb)
	_ = failCall(cb)
	_ = failCall(cb)
	clk.Advance(5 * time.Second)
	_ = cb.State() // realizes open -> half-open
	_ = successCall(cb)

	opened, halfOpened, closed := sink.breakerEvents()
	if len(opened) != 1 || len(halfOpened) != 1 || len(closed) != 1 {
		t.Fatalf("events = %d opened, %d half-opened, %d closed; want 1 each",
			len(opened), len(halfOpened), len(closed))
	}
	if opened[0].From != StateClosed || opened[0].To != StateOpen {
		t.Errorf("opened transition = %v -> %v, want closed -> open", opened[0].From, opened[0].To)
	}
	if opened[0].BreakDuration != 5*time.Second {
		t.Errorf("BreakDuration = %v, want 5s", opened[0].BreakDuration)
	}
	if closed[0].From != StateHalfOpen || closed[0].To != StateClosed {
		t.Errorf("closed transition = %v -> %v, want half-open -> closed", closed[0].From, closed[0].To)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	clk := newFakeClock()
	cb := newTestBreaker(clk, nil)

	_ = failCall(cb)
	_ = failCall(cb)
	_ = failCall(cb)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	cb.Reset()

	if cb.State() != StateClosed {
		t.Errorf("state = %v after reset, want closed", cb.State())
	}
	if m := cb.Metrics(); m.Samples != 0 {
		t.Errorf("Samples = %d after reset, want 0", m.Samples)
	}
}

func TestCircuitBreaker_ConcurrentRecording(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureRatio:      0.99,
		SamplingDuration:  time.Minute,
		MinimumThroughput: 1000,
		BreakDuration:     time.Minute,
	})

	var g errgroup.Group
	for i := 0; i < 100; i++ {
		g.Go(func() error {
			for j := 0; j < 10; j++ {
				if err := successCall(cb); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent calls failed: %v", err)
	}

	// No lost updates: every outcome is sampled.
	if m := cb.Metrics(); m.Samples != 1000 {
		t.Errorf("Samples = %d, want 1000", m.Samples)
	}
}
