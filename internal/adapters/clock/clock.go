// Package clock abstracts wall-clock time and timers so debounce windows can be
// driven deterministically in tests.
package clock

import "time"

// Timer is the subset of *time.Timer used by callers.
type Timer interface {
	Stop() bool
}

// Clock provides the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

// Now returns time.Now().
func (realClock) Now() time.Time {
	return time.Now()
}

// AfterFunc wraps time.AfterFunc.
// PRE: f is non-nil
// POST: f runs in its own goroutine after d unless the timer is stopped
func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
