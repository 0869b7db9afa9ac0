// Package writequeue coalesces frequent key/value persistence requests into
// infrequent batched writes against a storage adapter.
//
// Every Schedule call restarts one shared timer (a global trailing-edge
// debounce across all keys). Later values for the same key replace earlier
// ones before the flush.
package writequeue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dropin/internal/adapters/clock"
	"dropin/internal/adapters/kv"
)

// Default debounce windows.
const (
	DefaultBaseDelay = 100 * time.Millisecond
	DefaultBulkDelay = 500 * time.Millisecond
)

// flushTimeout bounds a timer-fired flush, which has no caller context.
const flushTimeout = 10 * time.Second

// Sink is the storage adapter the queue writes to.
type Sink interface {
	SetItem(ctx context.Context, key string, value []byte) error
	SetItems(ctx context.Context, entries []kv.Entry) error
}

// BulkSignal reports whether a bulk operation window is open.
type BulkSignal interface {
	IsInBulkOperation() bool
}

// FlushResult describes one completed flush.
type FlushResult struct {
	Keys     int
	Err      error
	Duration time.Duration
}

// Queue is a debounced write queue. The zero value is not usable; use New.
type Queue struct {
	sink      Sink
	clock     clock.Clock
	baseDelay time.Duration
	bulkDelay time.Duration
	bulk      BulkSignal
	disabled  bool
	observer  func(FlushResult)

	mu       sync.Mutex
	pending  map[string][]byte
	timer    clock.Timer
	gen      uint64 // bumped whenever the armed timer is replaced or stopped
	disposed bool

	// flushMu serializes writes so an older snapshot never lands after a newer one.
	flushMu sync.Mutex
}

// Option configures a Queue.
type Option func(*Queue)

// WithBaseDelay sets the debounce window used outside bulk operations.
func WithBaseDelay(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.baseDelay = d
		}
	}
}

// WithBulkDelay sets the debounce window used while the bulk signal is true.
func WithBulkDelay(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.bulkDelay = d
		}
	}
}

// WithBulkSignal supplies the bulk-operation predicate.
func WithBulkSignal(b BulkSignal) Option {
	return func(q *Queue) { q.bulk = b }
}

// WithDisabled turns Schedule into a no-op.
func WithDisabled(disabled bool) Option {
	return func(q *Queue) { q.disabled = disabled }
}

// WithClock overrides the timer source.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithFlushObserver registers a callback invoked after every non-empty flush.
func WithFlushObserver(fn func(FlushResult)) Option {
	return func(q *Queue) { q.observer = fn }
}

// New creates a Queue writing to sink.
// PRE: sink is non-nil
// POST: Returns an empty queue with no timer armed
func New(sink Sink, opts ...Option) *Queue {
	q := &Queue{
		sink:      sink,
		clock:     clock.Real(),
		baseDelay: DefaultBaseDelay,
		bulkDelay: DefaultBulkDelay,
		pending:   make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Schedule records value for key and restarts the shared debounce timer.
// PRE: key is non-empty
// POST: key maps to value in the pending set; one timer is armed
func (q *Queue) Schedule(key string, value []byte) {
	if q.disabled {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.disposed {
		slog.Warn("writequeue_schedule_after_dispose", "key", key)
		return
	}

	q.pending[key] = value
	q.stopTimerLocked()
	gen := q.gen
	q.timer = q.clock.AfterFunc(q.currentDelay(), func() { q.onTimer(gen) })
}

// stopTimerLocked stops the armed timer. A timer that already fired sees a
// newer generation in onTimer and does nothing.
func (q *Queue) stopTimerLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.gen++
}

// currentDelay picks the bulk or base window.
func (q *Queue) currentDelay() time.Duration {
	if q.bulk != nil && q.bulk.IsInBulkOperation() {
		return q.bulkDelay
	}
	return q.baseDelay
}

func (q *Queue) onTimer(gen uint64) {
	q.mu.Lock()
	if gen != q.gen {
		q.mu.Unlock()
		return
	}
	q.timer = nil
	q.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	q.flush(ctx)
}

// FlushNow cancels any pending timer and writes every pending entry immediately.
// POST: Pending() == 0 for entries scheduled before the call
func (q *Queue) FlushNow(ctx context.Context) {
	q.mu.Lock()
	q.stopTimerLocked()
	q.mu.Unlock()
	q.flush(ctx)
}

// Dispose flushes pending writes and rejects later Schedule calls.
// Intended for process shutdown.
func (q *Queue) Dispose(ctx context.Context) {
	q.mu.Lock()
	q.disposed = true
	q.mu.Unlock()
	q.FlushNow(ctx)
}

// Pending returns the number of keys waiting to be flushed.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// flush takes the pending snapshot and writes it. Failures are logged and the
// snapshot is dropped.
func (q *Queue) flush(ctx context.Context) {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	q.mu.Lock()
	snapshot := q.pending
	q.pending = make(map[string][]byte)
	q.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	start := q.clock.Now()
	var err error
	if len(snapshot) == 1 {
		for k, v := range snapshot {
			err = q.sink.SetItem(ctx, k, v)
		}
	} else {
		entries := make([]kv.Entry, 0, len(snapshot))
		for k, v := range snapshot {
			entries = append(entries, kv.Entry{Key: k, Value: v})
		}
		err = q.sink.SetItems(ctx, entries)
	}
	elapsed := q.clock.Now().Sub(start)

	if err != nil {
		slog.Error("writequeue_flush_failed", "keys", len(snapshot), "error", err)
	} else {
		slog.Debug("writequeue_flushed", "keys", len(snapshot), "duration_ms", elapsed.Milliseconds())
	}
	if q.observer != nil {
		q.observer(FlushResult{Keys: len(snapshot), Err: err, Duration: elapsed})
	}
}
