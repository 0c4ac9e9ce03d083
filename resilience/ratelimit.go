package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiterConfig configures the sliding-window rate limiter.
type RateLimiterConfig struct {
	// PermitLimit is the maximum number of permits granted per Window.
	// Default: 100
	PermitLimit int

	// Window is the sliding window length.
	// Default: 1s
	Window time.Duration

	// Segments divides Window into sub-windows so old grants decay
	// smoothly instead of resetting at a hard boundary.
	// Default: 8
	Segments int

	// QueueLimit bounds the FIFO queue of callers waiting for a permit.
	// Zero rejects immediately when the window is exhausted.
	// Default: 0
	QueueLimit int

	// Sink receives RateLimitRejected events.
	Sink EventSink

	// Clock overrides the wall clock, primarily for tests.
	Clock Clock
}

// permitWaiter is one queued caller. granted is closed when a permit has
// been recorded on the waiter's behalf.
type permitWaiter struct {
	granted chan struct{}
}

// RateLimiter bounds call admission with a segmented sliding window. A
// single instance guards one resource and is shared by all calls through
// the owning pipeline.
type RateLimiter struct {
	config   RateLimiterConfig
	sink     EventSink
	clock    Clock
	pipeline string

	mu        sync.Mutex
	counts    []int // permits granted per segment, ring-ordered
	head      int   // index of the current segment
	headStart time.Time
	queue     []*permitWaiter
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	// Apply defaults
	if config.PermitLimit <= 0 {
		config.PermitLimit = 100
	}
	if config.Window <= 0 {
		config.Window = time.Second
	}
	if config.Segments <= 0 {
		config.Segments = 8
	}
	if config.QueueLimit < 0 {
		config.QueueLimit = 0
	}

	return &RateLimiter{
		config: config,
		sink:   config.Sink,
		clock:  config.Clock,
		counts: make([]int, config.Segments),
	}
}

// Allow reports whether a permit is immediately available, consuming one if
// so. Queued waiters keep priority: Allow never overtakes the queue.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := clockOf(rl.clock).Now()
	return len(rl.queue) == 0 && rl.tryAcquireLocked(now)
}

// Acquire obtains one permit, queuing up to QueueLimit callers in FIFO
// order when the window is exhausted. It returns a RateLimitError when the
// queue is full, or ctx.Err() if the caller cancels while waiting.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	clk := clockOf(rl.clock)

	rl.mu.Lock()
	now := clk.Now()
	if len(rl.queue) == 0 && rl.tryAcquireLocked(now) {
		rl.mu.Unlock()
		return nil
	}
	if len(rl.queue) >= rl.config.QueueLimit {
		rl.mu.Unlock()
		rl.fireRejected()
		return &RateLimitError{Limit: rl.config.PermitLimit, Window: rl.config.Window}
	}
	w := &permitWaiter{granted: make(chan struct{})}
	rl.queue = append(rl.queue, w)
	rl.mu.Unlock()

	// Capacity only frees at segment boundaries, so sleep until the next
	// one, drain the queue head-first, and re-check.
	for {
		timer := clk.NewTimer(rl.untilNextBoundary(clk.Now()))

		select {
		case <-w.granted:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			// A grant may have raced the cancellation; in that case
			// the permit simply expires with its segment.
			rl.abandon(w)
			return ctx.Err()
		case <-timer.C():
			rl.mu.Lock()
			rl.drainLocked(clk.Now())
			rl.mu.Unlock()

			select {
			case <-w.granted:
				return nil
			default:
			}
		}
	}
}

// Execute runs the operation if a permit can be acquired. The operation is
// never invoked on rejection.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := rl.Acquire(ctx); err != nil {
		return err
	}
	return op(ctx)
}

func (rl *RateLimiter) segLen() time.Duration {
	seg := rl.config.Window / time.Duration(rl.config.Segments)
	if seg <= 0 {
		seg = time.Nanosecond
	}
	return seg
}

// advanceLocked rotates the segment ring so that head covers now.
func (rl *RateLimiter) advanceLocked(now time.Time) {
	if rl.headStart.IsZero() {
		rl.headStart = now
		return
	}

	elapsed := now.Sub(rl.headStart)
	if elapsed >= rl.config.Window {
		// Every segment is stale; restart the ring.
		clear(rl.counts)
		rl.headStart = now
		return
	}

	seg := rl.segLen()
	for elapsed >= seg {
		rl.head = (rl.head + 1) % len(rl.counts)
		rl.counts[rl.head] = 0
		rl.headStart = rl.headStart.Add(seg)
		elapsed -= seg
	}
}

func (rl *RateLimiter) inFlightLocked() int {
	total := 0
	for _, c := range rl.counts {
		total += c
	}
	return total
}

func (rl *RateLimiter) tryAcquireLocked(now time.Time) bool {
	rl.advanceLocked(now)
	if rl.inFlightLocked() >= rl.config.PermitLimit {
		return false
	}
	rl.counts[rl.head]++
	return true
}

// drainLocked grants permits to queued waiters, oldest first, while
// capacity remains.
func (rl *RateLimiter) drainLocked(now time.Time) {
	rl.advanceLocked(now)
	for len(rl.queue) > 0 && rl.inFlightLocked() < rl.config.PermitLimit {
		rl.counts[rl.head]++
		close(rl.queue[0].granted)
		rl.queue[0] = nil
		rl.queue = rl.queue[1:]
	}
}

// untilNextBoundary returns the wait until the current segment rotates.
func (rl *RateLimiter) untilNextBoundary(now time.Time) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.advanceLocked(now)
	return rl.headStart.Add(rl.segLen()).Sub(now)
}

// abandon removes a cancelled waiter from the queue if it is still queued.
func (rl *RateLimiter) abandon(w *permitWaiter) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for i, q := range rl.queue {
		if q == w {
			rl.queue = append(rl.queue[:i], rl.queue[i+1:]...)
			return
		}
	}
}

func (rl *RateLimiter) fireRejected() {
	if rl.sink == nil {
		return
	}
	ev := RejectedEvent{
		Pipeline: rl.pipeline,
		Limit:    rl.config.PermitLimit,
		Window:   rl.config.Window,
	}
	fire(func() { rl.sink.RateLimitRejected(ev) })
}

// RateLimiterMetrics contains a snapshot of limiter statistics.
type RateLimiterMetrics struct {
	// InFlight is the number of permits counted in the current window.
	InFlight int

	// Queued is the number of callers waiting for a permit.
	Queued int
}

// Metrics returns a snapshot of the limiter's current window and queue.
func (rl *RateLimiter) Metrics() RateLimiterMetrics {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.advanceLocked(clockOf(rl.clock).Now())
	return RateLimiterMetrics{
		InFlight: rl.inFlightLocked(),
		Queued:   len(rl.queue),
	}
}

// Config returns the rate limiter configuration.
func (rl *RateLimiter) Config() RateLimiterConfig {
	return rl.config
}
