package resilience

import (
	"sync"
	"testing"
	"time"
)

// captureSink records every event it receives. Safe for concurrent use.
type captureSink struct {
	mu         sync.Mutex
	retries    []RetryEvent
	opened     []BreakerEvent
	halfOpened []BreakerEvent
	closed     []BreakerEvent
	timeouts   []TimeoutEvent
	rejected   []RejectedEvent
	notify     chan struct{} // signalled (non-blocking) on every event
}

func (s *captureSink) signal() {
	if s.notify != nil {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}

func (s *captureSink) RetryScheduled(ev RetryEvent) {
	s.mu.Lock()
	s.retries = append(s.retries, ev)
	s.mu.Unlock()
	s.signal()
}

func (s *captureSink) BreakerOpened(ev BreakerEvent) {
	s.mu.Lock()
	s.opened = append(s.opened, ev)
	s.mu.Unlock()
	s.signal()
}

func (s *captureSink) BreakerHalfOpened(ev BreakerEvent) {
	s.mu.Lock()
	s.halfOpened = append(s.halfOpened, ev)
	s.mu.Unlock()
	s.signal()
}

func (s *captureSink) BreakerClosed(ev BreakerEvent) {
	s.mu.Lock()
	s.closed = append(s.closed, ev)
	s.mu.Unlock()
	s.signal()
}

func (s *captureSink) TimedOut(ev TimeoutEvent) {
	s.mu.Lock()
	s.timeouts = append(s.timeouts, ev)
	s.mu.Unlock()
	s.signal()
}

func (s *captureSink) RateLimitRejected(ev RejectedEvent) {
	s.mu.Lock()
	s.rejected = append(s.rejected, ev)
	s.mu.Unlock()
	s.signal()
}

func (s *captureSink) retryEvents() []RetryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RetryEvent(nil), s.retries...)
}

func (s *captureSink) breakerEvents() (opened, halfOpened, closed []BreakerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]BreakerEvent(nil), s.opened...),
		append([]BreakerEvent(nil), s.halfOpened...),
		append([]BreakerEvent(nil), s.closed...)
}

var _ EventSink = (*captureSink)(nil)

// panicSink panics on every event.
type panicSink struct {
	NoopSink
}

func (panicSink) RetryScheduled(RetryEvent)      { panic("sink failure") }
func (panicSink) BreakerOpened(BreakerEvent)     { panic("sink failure") }
func (panicSink) TimedOut(TimeoutEvent)          { panic("sink failure") }
func (panicSink) RateLimitRejected(RejectedEvent) { panic("sink failure") }

func TestFire_RecoversPanic(t *testing.T) {
	// Must not propagate the panic.
	fire(func() { panic("boom") })
}

func TestNoopSink_ImplementsEventSink(t *testing.T) {
	var sink EventSink = NoopSink{}

	// All methods are safe no-ops.
	sink.RetryScheduled(RetryEvent{Attempt: 1, Delay: time.Millisecond})
	sink.BreakerOpened(BreakerEvent{From: StateClosed, To: StateOpen})
	sink.BreakerHalfOpened(BreakerEvent{From: StateOpen, To: StateHalfOpen})
	sink.BreakerClosed(BreakerEvent{From: StateHalfOpen, To: StateClosed})
	sink.TimedOut(TimeoutEvent{Timeout: time.Second})
	sink.RateLimitRejected(RejectedEvent{Limit: 1, Window: time.Second})
}
