// Package bulk tracks bulk-operation windows (imports, migrations) during which
// persistence should batch more aggressively.
package bulk

import (
	"context"
	"sync"
	"sync/atomic"
)

// Window is a nestable bulk-operation signal. The zero value is closed.
type Window struct {
	depth atomic.Int32
}

// Begin opens the window and returns the func that closes it.
// Calling the returned func more than once has no further effect.
// POST: IsInBulkOperation() is true until every Begin has been ended
func (w *Window) Begin() (end func()) {
	w.depth.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { w.depth.Add(-1) })
	}
}

// IsInBulkOperation reports whether at least one Begin is still open.
func (w *Window) IsInBulkOperation() bool {
	return w.depth.Load() > 0
}

// Flusher drains pending persistence writes.
type Flusher interface {
	FlushNow(ctx context.Context)
}

// Run executes fn inside the window and flushes f once the outermost window closes.
// PRE: w and fn are non-nil
// POST: window closed; pending writes flushed when no other bulk op is open
func Run(ctx context.Context, w *Window, f Flusher, fn func(ctx context.Context) error) error {
	end := w.Begin()
	err := fn(ctx)
	end()
	if f != nil && !w.IsInBulkOperation() {
		f.FlushNow(ctx)
	}
	return err
}
