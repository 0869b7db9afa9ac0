package debounce

import (
	"sync"
	"time"

	"dropin/internal/adapters/clock"
)

// Throttle runs fn at most once per interval. The first call runs
// immediately; calls inside the interval collapse into one trailing call
// carrying the latest value.
type Throttle[T any] struct {
	fn       func(T)
	interval time.Duration
	clock    clock.Clock

	mu       sync.Mutex
	lastRun  time.Time
	ran      bool
	timer    clock.Timer
	trailing T
	hasTrail bool
}

// NewThrottle returns a Throttle. A nil clock uses the real clock.
// PRE: fn is non-nil, interval > 0
func NewThrottle[T any](fn func(T), interval time.Duration, clk clock.Clock) *Throttle[T] {
	if clk == nil {
		clk = clock.Real()
	}
	return &Throttle[T]{fn: fn, interval: interval, clock: clk}
}

// Call runs fn now if the interval has passed, otherwise schedules a trailing call.
func (t *Throttle[T]) Call(v T) {
	t.mu.Lock()
	now := t.clock.Now()
	if !t.ran || now.Sub(t.lastRun) >= t.interval {
		t.ran = true
		t.lastRun = now
		t.mu.Unlock()
		t.fn(v)
		return
	}

	t.trailing = v
	t.hasTrail = true
	if t.timer == nil {
		t.timer = t.clock.AfterFunc(t.interval-now.Sub(t.lastRun), t.fireTrailing)
	}
	t.mu.Unlock()
}

func (t *Throttle[T]) fireTrailing() {
	t.mu.Lock()
	t.timer = nil
	if !t.hasTrail {
		t.mu.Unlock()
		return
	}
	v := t.trailing
	t.hasTrail = false
	t.lastRun = t.clock.Now()
	t.mu.Unlock()
	t.fn(v)
}
