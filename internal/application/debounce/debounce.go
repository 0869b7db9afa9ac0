// Package debounce provides trailing-edge debounce and throttle helpers.
package debounce

import (
	"sync"
	"time"

	"dropin/internal/adapters/clock"
)

// Debouncer delays fn until wait has elapsed since the last Call.
type Debouncer[T any] struct {
	fn    func(T)
	wait  time.Duration
	clock clock.Clock

	mu      sync.Mutex
	timer   clock.Timer
	last    T
	pending bool
}

// New returns a Debouncer. A nil clock uses the real clock.
// PRE: fn is non-nil, wait > 0
func New[T any](fn func(T), wait time.Duration, clk clock.Clock) *Debouncer[T] {
	if clk == nil {
		clk = clock.Real()
	}
	return &Debouncer[T]{fn: fn, wait: wait, clock: clk}
}

// Call records v and restarts the wait window.
// POST: fn will run once with the latest value unless Cancel is called
func (d *Debouncer[T]) Call(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = v
	d.pending = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.wait, d.fire)
}

func (d *Debouncer[T]) fire() {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	v := d.last
	d.pending = false
	d.timer = nil
	d.mu.Unlock()
	d.fn(v)
}

// Flush runs a pending call immediately.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.fire()
}

// Cancel drops a pending call.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = false
}
