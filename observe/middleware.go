package observe

import (
	"context"
	"time"

	"github.com/jonwraymond/bulwark/resilience"
)

// ExecuteFunc runs an operation through an instrumented pipeline.
type ExecuteFunc func(ctx context.Context, op resilience.Operation) error

// Middleware wraps pipeline execution with observability (tracing, metrics,
// logging).
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe ExecuteFunc.
//   - Context: Propagates context through tracing spans.
//   - Errors: Errors from the pipeline are recorded and propagated unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given observability components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// Wrap wraps a pipeline with tracing, metrics, and logging. Each invocation
// of the returned ExecuteFunc records one span, one metric sample, and one
// log line covering the whole pipeline call, retries included.
func (m *Middleware) Wrap(meta PipelineMeta, p *resilience.Pipeline) ExecuteFunc {
	return func(ctx context.Context, op resilience.Operation) error {
		// Start span
		ctx, span := m.tracer.StartSpan(ctx, meta)

		// Record start time
		start := time.Now()

		// Execute through the pipeline
		err := p.Execute(ctx, op)

		// Calculate duration
		duration := time.Since(start)

		// End span (records error status if err != nil)
		m.tracer.EndSpan(span, err)

		// Record metrics
		m.metrics.RecordExecution(ctx, meta, duration, err)

		// Log the execution
		pipelineLogger := m.logger.WithPipeline(meta)
		fields := []Field{
			{Key: "duration_ms", Value: float64(duration.Milliseconds())},
		}

		if err != nil {
			fields = append(fields,
				Field{Key: "error", Value: err.Error()},
				Field{Key: "outcome", Value: resilience.KindOf(err).String()},
			)
			pipelineLogger.Error(ctx, "pipeline execution failed", fields...)
		} else {
			pipelineLogger.Info(ctx, "pipeline execution completed", fields...)
		}

		return err
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
// This is a convenience function for common use cases.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	tracer := newTracer(obs.Tracer())

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(tracer, metrics, obs.Logger()), nil
}
