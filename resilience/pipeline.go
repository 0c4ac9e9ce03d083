package resilience

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Operation is the unit of work guarded by a pipeline.
type Operation func(context.Context) error

// Pipeline chains resilience strategies around a single guarded operation.
//
// Pipelines are long-lived: build one per guarded endpoint and reuse it for
// every call, so that circuit breaker and rate limiter state is shared
// across callers. Pipelines support arbitrary concurrent entry.
type Pipeline struct {
	name string

	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreaker
	timeout        *Timeout
	retry          *Retry

	sink  EventSink
	clock Clock
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithName names the pipeline; events carry the name. Unnamed pipelines get
// a generated one.
func WithName(name string) PipelineOption {
	return func(p *Pipeline) {
		p.name = name
	}
}

// WithRetry adds a retry strategy to the pipeline.
func WithRetry(r *Retry) PipelineOption {
	return func(p *Pipeline) {
		p.retry = r
	}
}

// WithCircuitBreaker adds a circuit breaker to the pipeline.
func WithCircuitBreaker(cb *CircuitBreaker) PipelineOption {
	return func(p *Pipeline) {
		p.circuitBreaker = cb
	}
}

// WithTimeout adds a timeout strategy to the pipeline.
func WithTimeout(t *Timeout) PipelineOption {
	return func(p *Pipeline) {
		p.timeout = t
	}
}

// WithRateLimiter adds a rate limiter to the pipeline.
func WithRateLimiter(rl *RateLimiter) PipelineOption {
	return func(p *Pipeline) {
		p.rateLimiter = rl
	}
}

// WithSink sets the event sink for every strategy that did not configure
// its own.
func WithSink(s EventSink) PipelineOption {
	return func(p *Pipeline) {
		p.sink = s
	}
}

// WithClock sets the clock for every strategy that did not configure its
// own, primarily for tests.
func WithClock(c Clock) PipelineOption {
	return func(p *Pipeline) {
		p.clock = c
	}
}

// NewPipeline creates a new pipeline from the given options.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.name == "" {
		p.name = "pipeline-" + uuid.NewString()[:8]
	}
	p.adopt()
	return p
}

// adopt propagates the pipeline identity and shared defaults to strategies
// that did not set their own.
func (p *Pipeline) adopt() {
	if p.retry != nil {
		p.retry.pipeline = p.name
		if p.retry.sink == nil {
			p.retry.sink = p.sink
		}
		if p.retry.clock == nil {
			p.retry.clock = p.clock
		}
	}
	if p.circuitBreaker != nil {
		p.circuitBreaker.pipeline = p.name
		if p.circuitBreaker.sink == nil {
			p.circuitBreaker.sink = p.sink
		}
		if p.circuitBreaker.clock == nil {
			p.circuitBreaker.clock = p.clock
		}
	}
	if p.timeout != nil {
		p.timeout.pipeline = p.name
		if p.timeout.sink == nil {
			p.timeout.sink = p.sink
		}
		if p.timeout.clock == nil {
			p.timeout.clock = p.clock
		}
	}
	if p.rateLimiter != nil {
		p.rateLimiter.pipeline = p.name
		if p.rateLimiter.sink == nil {
			p.rateLimiter.sink = p.sink
		}
		if p.rateLimiter.clock == nil {
			p.rateLimiter.clock = p.clock
		}
	}
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string {
	return p.name
}

// CircuitBreaker returns the pipeline's circuit breaker, or nil.
func (p *Pipeline) CircuitBreaker() *CircuitBreaker {
	return p.circuitBreaker
}

// RateLimiter returns the pipeline's rate limiter, or nil.
func (p *Pipeline) RateLimiter() *RateLimiter {
	return p.rateLimiter
}

// Execute runs the operation through all configured strategies.
//
// The composition order is fixed:
//  1. Rate Limiter (outermost) - admission control
//  2. Circuit Breaker - fast rejection while open
//  3. Timeout - bounds the whole remaining chain
//  4. Retry (innermost) - re-invokes the operation on handled failure
//
// A rejection at any layer skips all inner layers; the operation is not
// invoked. Absent strategies are skipped.
func (p *Pipeline) Execute(ctx context.Context, op Operation) error {
	// Build the execution chain from inside out
	execute := op

	// Wrap with retry (innermost)
	if p.retry != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return p.retry.Execute(ctx, inner)
		}
	}

	// Wrap with timeout
	if p.timeout != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return p.timeout.Execute(ctx, inner)
		}
	}

	// Wrap with circuit breaker
	if p.circuitBreaker != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return p.circuitBreaker.Execute(ctx, inner)
		}
	}

	// Wrap with rate limiter (outermost)
	if p.rateLimiter != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return p.rateLimiter.Execute(ctx, inner)
		}
	}

	return execute(ctx)
}

// Run executes an operation that returns a value through the pipeline.
// Rejections, timeouts, and failures return the zero value of T alongside
// the pipeline's error.
func Run[T any](ctx context.Context, p *Pipeline, op func(context.Context) (T, error)) (T, error) {
	// The timeout strategy abandons expired operations, which may still
	// be completing when Run returns; guard the result slot.
	var (
		mu  sync.Mutex
		out T
	)

	err := p.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		out = v
		mu.Unlock()
		return nil
	})

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
