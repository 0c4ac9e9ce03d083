package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/bulwark/resilience"
)

// PipelineSink bridges resilience pipeline events into metrics and logs.
// Register it on a pipeline via resilience.WithSink.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: event handling is best-effort and must not panic.
type PipelineSink struct {
	logger      Logger
	retries     metric.Int64Counter
	timeouts    metric.Int64Counter
	rejections  metric.Int64Counter
	transitions metric.Int64Counter
}

// NewPipelineSink creates a sink that records pipeline lifecycle events with
// the given meter and logger.
func NewPipelineSink(meter metric.Meter, logger Logger) (*PipelineSink, error) {
	retries, err := meter.Int64Counter(
		"resilience.retries",
		metric.WithDescription("Retries scheduled after handled failures"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	timeouts, err := meter.Int64Counter(
		"resilience.timeouts",
		metric.WithDescription("Operations cancelled by the timeout strategy"),
		metric.WithUnit("{timeout}"),
	)
	if err != nil {
		return nil, err
	}

	rejections, err := meter.Int64Counter(
		"resilience.rate_limit_rejections",
		metric.WithDescription("Calls rejected by the rate limiter"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"resilience.breaker_transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = &noopLogger{}
	}

	return &PipelineSink{
		logger:      logger,
		retries:     retries,
		timeouts:    timeouts,
		rejections:  rejections,
		transitions: transitions,
	}, nil
}

// SinkFromObserver creates a PipelineSink from an Observer.
func SinkFromObserver(obs Observer) (*PipelineSink, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	return NewPipelineSink(obs.Meter(), obs.Logger())
}

// RetryScheduled records a scheduled retry.
func (s *PipelineSink) RetryScheduled(e resilience.RetryEvent) {
	ctx := context.Background()
	s.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pipeline.name", e.Pipeline),
	))
	s.logger.Debug(ctx, "retry scheduled",
		Field{Key: "pipeline.name", Value: e.Pipeline},
		Field{Key: "attempt", Value: e.Attempt},
		Field{Key: "delay_ms", Value: float64(e.Delay.Milliseconds())},
		Field{Key: "error", Value: errString(e.Err)},
	)
}

// BreakerOpened records a transition to the open state.
func (s *PipelineSink) BreakerOpened(e resilience.BreakerEvent) {
	ctx := context.Background()
	s.recordTransition(ctx, e)
	s.logger.Warn(ctx, "circuit opened",
		Field{Key: "pipeline.name", Value: e.Pipeline},
		Field{Key: "break_duration_ms", Value: float64(e.BreakDuration.Milliseconds())},
	)
}

// BreakerHalfOpened records a transition to the half-open state.
func (s *PipelineSink) BreakerHalfOpened(e resilience.BreakerEvent) {
	ctx := context.Background()
	s.recordTransition(ctx, e)
	s.logger.Info(ctx, "circuit half-open",
		Field{Key: "pipeline.name", Value: e.Pipeline},
	)
}

// BreakerClosed records a transition back to the closed state.
func (s *PipelineSink) BreakerClosed(e resilience.BreakerEvent) {
	ctx := context.Background()
	s.recordTransition(ctx, e)
	s.logger.Info(ctx, "circuit closed",
		Field{Key: "pipeline.name", Value: e.Pipeline},
	)
}

// TimedOut records an expired call.
func (s *PipelineSink) TimedOut(e resilience.TimeoutEvent) {
	ctx := context.Background()
	s.timeouts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pipeline.name", e.Pipeline),
	))
	s.logger.Warn(ctx, "operation timed out",
		Field{Key: "pipeline.name", Value: e.Pipeline},
		Field{Key: "timeout_ms", Value: float64(e.Timeout.Milliseconds())},
	)
}

// RateLimitRejected records a rejected call.
func (s *PipelineSink) RateLimitRejected(e resilience.RejectedEvent) {
	ctx := context.Background()
	s.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pipeline.name", e.Pipeline),
	))
	s.logger.Warn(ctx, "rate limit rejected call",
		Field{Key: "pipeline.name", Value: e.Pipeline},
		Field{Key: "limit", Value: e.Limit},
		Field{Key: "window_ms", Value: float64(e.Window.Milliseconds())},
	)
}

func (s *PipelineSink) recordTransition(ctx context.Context, e resilience.BreakerEvent) {
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pipeline.name", e.Pipeline),
		attribute.String("breaker.from", e.From.String()),
		attribute.String("breaker.to", e.To.String()),
	))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Ensure PipelineSink implements resilience.EventSink
var _ resilience.EventSink = (*PipelineSink)(nil)
