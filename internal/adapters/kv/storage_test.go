package kv

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyBackend wraps a MemoryStore and can be told to fail.
type flakyBackend struct {
	*MemoryStore
	pingErr  error
	writeErr error
	readErr  error
	calls    int
}

func newFlaky() *flakyBackend { return &flakyBackend{MemoryStore: NewMemoryStore()} }

func (f *flakyBackend) Ping(ctx context.Context) error { return f.pingErr }

func (f *flakyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	f.calls++
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *flakyBackend) Set(ctx context.Context, key string, value []byte) error {
	f.calls++
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.MemoryStore.Set(ctx, key, value)
}

func (f *flakyBackend) SetMany(ctx context.Context, entries []Entry) error {
	f.calls++
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.MemoryStore.SetMany(ctx, entries)
}

func (f *flakyBackend) Delete(ctx context.Context, key string) error {
	f.calls++
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.MemoryStore.Delete(ctx, key)
}

// TestStorage_PrimaryRoundTrip verifies reads and writes hit the primary.
func TestStorage_PrimaryRoundTrip(t *testing.T) {
	ctx := context.Background()
	primary, fallback := newFlaky(), newFlaky()
	s := NewStorage(ctx, primary, fallback, Options{})

	require.NoError(t, s.SetItem(ctx, "board:2026-01-01", []byte(`{"n":1}`)))
	assert.Equal(t, `{"n":1}`, string(s.GetItem(ctx, "board:2026-01-01")))
	assert.Nil(t, s.GetItem(ctx, "missing"))

	require.NoError(t, s.SetItems(ctx, []Entry{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte("2")}}))
	assert.Equal(t, "2", string(s.GetItem(ctx, "b")))

	require.NoError(t, s.RemoveItem(ctx, "a"))
	assert.Nil(t, s.GetItem(ctx, "a"))
	assert.Equal(t, 0, fallback.calls)
	assert.False(t, s.UsingFallback())
}

// TestStorage_UnavailablePrimaryUsesFallback verifies construction-time fallback.
func TestStorage_UnavailablePrimaryUsesFallback(t *testing.T) {
	ctx := context.Background()
	primary, fallback := newFlaky(), newFlaky()
	primary.pingErr = errors.New("connection refused")
	s := NewStorage(ctx, primary, fallback, Options{})

	require.NoError(t, s.SetItem(ctx, "k", []byte("v")))
	assert.Equal(t, "v", string(s.GetItem(ctx, "k")))
	assert.True(t, s.UsingFallback())
	assert.Equal(t, 0, primary.calls)
}

// TestStorage_PrimaryWriteFailureFallsBack verifies the first failure degrades once.
func TestStorage_PrimaryWriteFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	primary, fallback := newFlaky(), newFlaky()
	var ops []string
	s := NewStorage(ctx, primary, fallback, Options{OnFallback: func(op string) { ops = append(ops, op) }})

	primary.writeErr = errors.New("quota exceeded")
	require.NoError(t, s.SetItem(ctx, "k", []byte("v")))

	v, err := fallback.MemoryStore.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))
	assert.Equal(t, []string{"set"}, ops)
	assert.True(t, s.UsingFallback())

	primary.readErr = errors.New("io error")
	assert.Equal(t, "v", string(s.GetItem(ctx, "k")))
	assert.Equal(t, []string{"set"}, ops)
}

// TestStorage_PrimaryRecoveryKeepsLastWrite verifies a primary that comes back
// after a failure never shadows newer fallback values.
func TestStorage_PrimaryRecoveryKeepsLastWrite(t *testing.T) {
	ctx := context.Background()
	primary, fallback := newFlaky(), newFlaky()
	s := NewStorage(ctx, primary, fallback, Options{})

	require.NoError(t, s.SetItem(ctx, "board:2026-01-01", []byte("v1")))
	require.NoError(t, s.SetItem(ctx, "guests:directory", []byte("d1")))
	require.NoError(t, s.SetItem(ctx, "gone", []byte("old")))

	primary.writeErr = errors.New("quota exceeded")
	require.NoError(t, s.SetItem(ctx, "board:2026-01-01", []byte("v2")))
	require.NoError(t, s.RemoveItem(ctx, "gone"))

	primary.writeErr = nil
	callsBefore := primary.calls
	require.NoError(t, s.SetItem(ctx, "board:2026-01-01", []byte("v3")))
	assert.Equal(t, callsBefore, primary.calls, "no writes reach the primary once degraded")

	assert.Equal(t, "v3", string(s.GetItem(ctx, "board:2026-01-01")))
	assert.Equal(t, "d1", string(s.GetItem(ctx, "guests:directory")))
	assert.Nil(t, s.GetItem(ctx, "gone"))

	stale, err := primary.MemoryStore.Get(ctx, "board:2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(stale))

	primary.readErr = errors.New("io error")
	assert.Nil(t, s.GetItem(ctx, "gone"))
	assert.Equal(t, "v3", string(s.GetItem(ctx, "board:2026-01-01")))
}

// TestStorage_PrimaryReadFailureDegrades verifies a failed read also switches backends.
func TestStorage_PrimaryReadFailureDegrades(t *testing.T) {
	ctx := context.Background()
	primary, fallback := newFlaky(), newFlaky()
	var ops []string
	s := NewStorage(ctx, primary, fallback, Options{OnFallback: func(op string) { ops = append(ops, op) }})

	primary.readErr = errors.New("io error")
	assert.Nil(t, s.GetItem(ctx, "k"))
	assert.Equal(t, []string{"get"}, ops)
	assert.True(t, s.UsingFallback())

	primary.readErr = nil
	require.NoError(t, s.SetItem(ctx, "k", []byte("v")))
	_, err := primary.MemoryStore.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "v", string(s.GetItem(ctx, "k")))
}

// TestStorage_BothFailReturnsErrorWithoutPanic verifies failures are contained.
func TestStorage_BothFailReturnsErrorWithoutPanic(t *testing.T) {
	ctx := context.Background()
	primary, fallback := newFlaky(), newFlaky()
	primary.writeErr = errors.New("primary down")
	fallback.writeErr = errors.New("fallback down")
	fallback.readErr = errors.New("fallback down")
	primary.readErr = errors.New("primary down")
	s := NewStorage(ctx, primary, fallback, Options{})

	assert.Error(t, s.SetItem(ctx, "k", []byte("v")))
	assert.Error(t, s.SetItems(ctx, []Entry{{Key: "k", Value: []byte("v")}}))
	assert.Nil(t, s.GetItem(ctx, "k"))
}

// TestStorage_Disabled verifies cold reads and no backend writes.
func TestStorage_Disabled(t *testing.T) {
	ctx := context.Background()
	primary, fallback := newFlaky(), newFlaky()
	_ = primary.MemoryStore.Set(ctx, "k", []byte("stale"))
	s := NewStorage(ctx, primary, fallback, Options{Disabled: true})

	for _, key := range []string{"k", "board:2026-01-01", ""} {
		assert.Nil(t, s.GetItem(ctx, key))
		assert.NoError(t, s.SetItem(ctx, key, []byte("x")))
		assert.NoError(t, s.RemoveItem(ctx, key))
	}
	assert.NoError(t, s.SetItems(ctx, []Entry{{Key: "a", Value: []byte("1")}}))
	assert.Equal(t, 0, primary.calls)
	assert.Equal(t, 0, fallback.calls)
	assert.True(t, s.Disabled())
}

// TestOpen_MemoryDriver verifies the memory driver runs on the fallback only.
func TestOpen_MemoryDriver(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: DriverMemory}, nil, nil)
	require.NoError(t, err)
	assert.True(t, s.UsingFallback())
	require.NoError(t, s.SetItem(ctx, "k", []byte("v")))
	assert.Equal(t, "v", string(s.GetItem(ctx, "k")))
}

// TestOpen_UnknownDriver verifies configuration errors surface.
func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "indexeddb"}, nil, nil)
	assert.Error(t, err)
}
