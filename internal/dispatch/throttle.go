package dispatch

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Throttle calls a function at most once per interval. The first trigger
// after a quiet interval calls it right away; triggers inside the interval
// collapse into one trailing call at the end of it.
type Throttle struct {
	clock    clockwork.Clock
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	last    time.Time
	fired   bool
	pending clockwork.Timer
	stopped bool
}

// NewThrottle returns a throttle around fn. A nil clock means the wall
// clock. The trailing call runs on its own goroutine.
func NewThrottle(c clockwork.Clock, interval time.Duration, fn func()) *Throttle {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	return &Throttle{clock: c, interval: interval, fn: fn}
}

// Trigger requests a call.
func (t *Throttle) Trigger() {
	t.mu.Lock()
	if t.stopped || t.pending != nil {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	if elapsed := now.Sub(t.last); !t.fired || elapsed >= t.interval {
		t.last = now
		t.fired = true
		t.mu.Unlock()
		t.fn()
		return
	}
	t.pending = t.clock.AfterFunc(t.interval-now.Sub(t.last), t.flush)
	t.mu.Unlock()
}

func (t *Throttle) flush() {
	t.mu.Lock()
	if t.stopped || t.pending == nil {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	t.last = t.clock.Now()
	t.mu.Unlock()
	t.fn()
}

// Stop cancels a pending trailing call. Later triggers are ignored.
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}
