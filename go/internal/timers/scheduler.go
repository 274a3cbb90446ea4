package timers

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) clockwork.Timer
}

// Scheduler hands out cancellable one-shot and repeating callbacks.
type Scheduler struct {
	clock Clock
}

// NewScheduler creates a scheduler on top of the given clock
func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// Handle is a cancellation capability for one scheduled callback chain.
// After Stop returns no new invocation of the callback will start; an
// invocation that already started runs to completion, so callers that share
// state with the callback must validate it themselves.
type Handle struct {
	mu      sync.Mutex
	timer   clockwork.Timer
	stopped bool
}

// Stop cancels the handle. Safe to call more than once and on a nil handle.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// isStopped reports whether Stop has been called
func (h *Handle) isStopped() bool {
	if h == nil {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// begin marks the current timer as consumed and reports whether the callback may run
func (h *Handle) begin() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.timer = nil
	return true
}

// After runs fn once after d.
func (s *Scheduler) After(d time.Duration, fn func()) *Handle {
	h := &Handle{}

	h.mu.Lock()
	h.timer = s.clock.AfterFunc(d, func() {
		if !h.begin() {
			return
		}
		h.Stop()
		fn()
	})
	h.mu.Unlock()

	return h
}

// Every runs fn each interval until fn returns false or the handle is stopped.
// The next tick is armed only after fn returns, so invocations never overlap.
func (s *Scheduler) Every(interval time.Duration, fn func() bool) *Handle {
	h := &Handle{}

	var tick func()
	tick = func() {
		if !h.begin() {
			return
		}
		if !fn() {
			h.Stop()
			return
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		if h.stopped {
			return
		}
		h.timer = s.clock.AfterFunc(interval, tick)
	}

	h.mu.Lock()
	h.timer = s.clock.AfterFunc(interval, tick)
	h.mu.Unlock()

	return h
}
