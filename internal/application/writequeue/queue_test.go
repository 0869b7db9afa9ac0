package writequeue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dropin/internal/adapters/clock"
	"dropin/internal/adapters/clock/clocktest"
	"dropin/internal/adapters/kv"
)

// recordingSink captures every write the queue makes.
type recordingSink struct {
	mu       sync.Mutex
	single   []kv.Entry
	bulk     [][]kv.Entry
	failWith error
}

func (s *recordingSink) SetItem(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.single = append(s.single, kv.Entry{Key: key, Value: value})
	return s.failWith
}

func (s *recordingSink) SetItems(_ context.Context, entries []kv.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulk = append(s.bulk, entries)
	return s.failWith
}

func (s *recordingSink) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.single) + len(s.bulk)
}

type bulkFlag bool

func (b *bulkFlag) IsInBulkOperation() bool { return bool(*b) }

func newTestQueue(sink Sink, opts ...Option) (*Queue, *clocktest.Fake) {
	clk := clocktest.New(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	opts = append([]Option{WithClock(clk)}, opts...)
	return New(sink, opts...), clk
}

func entryMap(entries []kv.Entry) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Key] = string(e.Value)
	}
	return m
}

// TestQueue_LastWriteWins verifies coalescing of repeated writes to one key.
func TestQueue_LastWriteWins(t *testing.T) {
	sink := &recordingSink{}
	q, clk := newTestQueue(sink)

	q.Schedule("a", []byte("1"))
	clk.Advance(50 * time.Millisecond)
	q.Schedule("a", []byte("2"))
	clk.Advance(99 * time.Millisecond)
	assert.Equal(t, 0, sink.calls(), "no flush before the debounce window elapses")

	clk.Advance(time.Millisecond)
	require.Equal(t, 1, sink.calls())
	require.Len(t, sink.single, 1)
	assert.Equal(t, "a", sink.single[0].Key)
	assert.Equal(t, "2", string(sink.single[0].Value))
}

// TestQueue_MultipleKeysUseBulkWrite verifies distinct keys flush together.
func TestQueue_MultipleKeysUseBulkWrite(t *testing.T) {
	sink := &recordingSink{}
	q, clk := newTestQueue(sink)

	q.Schedule("a", []byte("1"))
	q.Schedule("b", []byte("2"))
	clk.Advance(DefaultBaseDelay)

	assert.Empty(t, sink.single)
	require.Len(t, sink.bulk, 1)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, entryMap(sink.bulk[0]))
}

// TestQueue_GlobalDebounceAcrossKeys verifies any schedule restarts the shared timer.
func TestQueue_GlobalDebounceAcrossKeys(t *testing.T) {
	sink := &recordingSink{}
	q, clk := newTestQueue(sink)

	q.Schedule("a", []byte("1"))
	clk.Advance(80 * time.Millisecond)
	q.Schedule("b", []byte("2"))
	clk.Advance(80 * time.Millisecond)
	assert.Equal(t, 0, sink.calls())

	clk.Advance(20 * time.Millisecond)
	assert.Equal(t, 1, sink.calls())
	assert.Equal(t, 0, clk.PendingTimers())
}

// TestQueue_FlushNowCancelsTimer verifies an immediate flush with no duplicate later.
func TestQueue_FlushNowCancelsTimer(t *testing.T) {
	sink := &recordingSink{}
	q, clk := newTestQueue(sink)

	q.Schedule("x", []byte("5"))
	q.FlushNow(context.Background())

	require.Len(t, sink.single, 1)
	assert.Equal(t, "x", sink.single[0].Key)
	assert.Equal(t, "5", string(sink.single[0].Value))
	assert.Equal(t, 0, q.Pending())

	clk.Advance(time.Second)
	assert.Equal(t, 1, sink.calls(), "no duplicate flush after FlushNow")
}

// TestQueue_EmptyFlushIsNoop verifies no adapter call for an empty queue.
func TestQueue_EmptyFlushIsNoop(t *testing.T) {
	sink := &recordingSink{}
	q, _ := newTestQueue(sink)
	q.FlushNow(context.Background())
	assert.Equal(t, 0, sink.calls())
}

// TestQueue_BulkDelay verifies the longer window while a bulk operation is open.
func TestQueue_BulkDelay(t *testing.T) {
	sink := &recordingSink{}
	inBulk := bulkFlag(true)
	q, clk := newTestQueue(sink, WithBulkSignal(&inBulk))

	q.Schedule("a", []byte("1"))
	clk.Advance(DefaultBaseDelay)
	assert.Equal(t, 0, sink.calls())

	clk.Advance(DefaultBulkDelay - DefaultBaseDelay)
	assert.Equal(t, 1, sink.calls())
}

// TestQueue_CustomDelays verifies configured windows are honored.
func TestQueue_CustomDelays(t *testing.T) {
	sink := &recordingSink{}
	q, clk := newTestQueue(sink, WithBaseDelay(20*time.Millisecond), WithBulkDelay(40*time.Millisecond))

	q.Schedule("a", []byte("1"))
	clk.Advance(19 * time.Millisecond)
	assert.Equal(t, 0, sink.calls())
	clk.Advance(time.Millisecond)
	assert.Equal(t, 1, sink.calls())
}

// TestQueue_FailedFlushDropsEntries verifies failures are not re-queued.
func TestQueue_FailedFlushDropsEntries(t *testing.T) {
	sink := &recordingSink{failWith: errors.New("disk full")}
	var results []FlushResult
	q, clk := newTestQueue(sink, WithFlushObserver(func(r FlushResult) { results = append(results, r) }))

	q.Schedule("a", []byte("1"))
	clk.Advance(DefaultBaseDelay)

	assert.Equal(t, 0, q.Pending())
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Equal(t, 1, results[0].Keys)

	q.FlushNow(context.Background())
	assert.Equal(t, 1, sink.calls(), "dropped entries are not retried")
}

// TestQueue_Disabled verifies Schedule is a no-op when persistence is disabled.
func TestQueue_Disabled(t *testing.T) {
	sink := &recordingSink{}
	q, clk := newTestQueue(sink, WithDisabled(true))

	q.Schedule("a", []byte("1"))
	clk.Advance(time.Second)
	q.FlushNow(context.Background())

	assert.Equal(t, 0, sink.calls())
	assert.Equal(t, 0, clk.PendingTimers())
}

// TestQueue_ScheduleDuringFlushLandsInNextCycle verifies snapshot-then-clear.
func TestQueue_ScheduleDuringFlushLandsInNextCycle(t *testing.T) {
	var q *Queue
	sink := &reentrantSink{onFirst: func() { q.Schedule("late", []byte("9")) }}
	var clk *clocktest.Fake
	q, clk = newTestQueue(sink)

	q.Schedule("early", []byte("1"))
	clk.Advance(DefaultBaseDelay)
	require.Len(t, sink.writes, 1)
	assert.Equal(t, "early", sink.writes[0].Key)
	assert.Equal(t, 1, q.Pending())

	clk.Advance(DefaultBaseDelay)
	require.Len(t, sink.writes, 2)
	assert.Equal(t, "late", sink.writes[1].Key)
}

// TestQueue_DisposeFlushesAndRejects verifies shutdown behaviour.
func TestQueue_DisposeFlushesAndRejects(t *testing.T) {
	sink := &recordingSink{}
	q, clk := newTestQueue(sink)

	q.Schedule("a", []byte("1"))
	q.Dispose(context.Background())
	assert.Equal(t, 1, sink.calls())

	q.Schedule("b", []byte("2"))
	clk.Advance(time.Second)
	assert.Equal(t, 1, sink.calls())
	assert.Equal(t, 0, q.Pending())
}

// reentrantSink schedules a new write while the first flush is in flight.
type reentrantSink struct {
	writes  []kv.Entry
	onFirst func()
}

func (s *reentrantSink) SetItem(_ context.Context, key string, value []byte) error {
	s.writes = append(s.writes, kv.Entry{Key: key, Value: value})
	if len(s.writes) == 1 && s.onFirst != nil {
		s.onFirst()
	}
	return nil
}

func (s *reentrantSink) SetItems(_ context.Context, entries []kv.Entry) error {
	s.writes = append(s.writes, entries...)
	return nil
}

// TestQueue_DisposeRejectsScheduleDuringFinalFlush verifies nothing is armed
// once teardown has started.
func TestQueue_DisposeRejectsScheduleDuringFinalFlush(t *testing.T) {
	sink := &reentrantSink{}
	q, clk := newTestQueue(sink)
	sink.onFirst = func() { q.Schedule("late", []byte("x")) }

	q.Schedule("a", []byte("1"))
	q.Dispose(context.Background())
	require.Len(t, sink.writes, 1)

	clk.Advance(time.Second)
	assert.Len(t, sink.writes, 1)
	assert.Equal(t, 0, q.Pending())
}

// manualClock hands out timers whose Stop always reports the timer already
// fired, so the test decides when each callback runs.
type manualClock struct {
	fns []func()
}

type firedTimer struct{}

func (firedTimer) Stop() bool { return false }

func (c *manualClock) Now() time.Time { return time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC) }

func (c *manualClock) AfterFunc(_ time.Duration, f func()) clock.Timer {
	c.fns = append(c.fns, f)
	return firedTimer{}
}

// TestQueue_StaleTimerDoesNotFlush verifies a timer that fired after being
// replaced leaves the newer quiet period intact.
func TestQueue_StaleTimerDoesNotFlush(t *testing.T) {
	sink := &recordingSink{}
	clk := &manualClock{}
	q := New(sink, WithClock(clk))

	q.Schedule("a", []byte("1"))
	q.Schedule("b", []byte("2"))
	require.Len(t, clk.fns, 2)

	clk.fns[0]()
	assert.Equal(t, 0, sink.calls(), "replaced timer must not flush")
	assert.Equal(t, 2, q.Pending())

	clk.fns[1]()
	require.Equal(t, 1, sink.calls())
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, entryMap(sink.bulk[0]))

	q.Schedule("c", []byte("3"))
	q.FlushNow(context.Background())
	clk.fns[2]()
	assert.Equal(t, 2, sink.calls(), "timer stopped by FlushNow must not flush again")
}
