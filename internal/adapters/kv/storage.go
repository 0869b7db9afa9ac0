package kv

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Options configures a Storage.
type Options struct {
	// Disabled turns every read into a miss and every write into a no-op.
	Disabled bool
	// OnFallback is called once when Storage stops using the primary backend.
	OnFallback func(op string)
}

// Storage is the persistence boundary used by the write queue and the board.
// Reads never fail: a missing or unreadable key is a cold start (nil).
// Writes are logged on failure and the error is returned for accounting only.
//
// The first failed primary operation degrades the Storage for good: later
// writes and deletes go to the fallback only. Keys touched after that are
// read from the fallback; untouched keys are still read from the primary,
// which holds their last write.
type Storage struct {
	primary  Backend
	fallback Backend
	opts     Options

	mu       sync.Mutex
	degraded bool
	touched  map[string]bool
}

// NewStorage builds a Storage. When primary is nil or does not answer a ping,
// every operation goes straight to fallback.
// PRE: fallback is non-nil
// POST: Returns a ready Storage
func NewStorage(ctx context.Context, primary, fallback Backend, opts Options) *Storage {
	s := &Storage{primary: primary, fallback: fallback, opts: opts, touched: make(map[string]bool)}
	if primary == nil {
		s.degraded = true
		return s
	}
	if !opts.Disabled {
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := primary.Ping(pctx); err != nil {
			slog.Warn("kv_primary_unavailable", "error", err)
			s.primary = nil
			s.degraded = true
			s.noteFallback("ping")
		}
	}
	return s
}

// Disabled reports whether persistence is turned off.
func (s *Storage) Disabled() bool {
	return s.opts.Disabled
}

// UsingFallback reports whether writes currently go to the fallback backend.
func (s *Storage) UsingFallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// GetItem returns the stored value or nil.
// POST: never returns an error; failures are logged
func (s *Storage) GetItem(ctx context.Context, key string) []byte {
	if s.opts.Disabled {
		return nil
	}
	if !s.UsingFallback() {
		v, err := s.primary.Get(ctx, key)
		if err == nil {
			return v
		}
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		slog.Warn("kv_get_failed", "key", key, "backend", "primary", "error", err)
		s.degrade("get")
	}

	v, err := s.fallback.Get(ctx, key)
	if err == nil {
		return v
	}
	if !errors.Is(err, ErrNotFound) {
		slog.Error("kv_get_failed", "key", key, "backend", "fallback", "error", err)
		return nil
	}
	if s.primary == nil || s.isTouched(key) {
		return nil
	}
	v, err = s.primary.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("kv_get_failed", "key", key, "backend", "primary", "error", err)
		}
		return nil
	}
	return v
}

// SetItem stores one key.
func (s *Storage) SetItem(ctx context.Context, key string, value []byte) error {
	if s.opts.Disabled {
		return nil
	}
	return s.write("set", []string{key}, func(b Backend) error { return b.Set(ctx, key, value) })
}

// SetItems stores several keys at once.
func (s *Storage) SetItems(ctx context.Context, entries []Entry) error {
	if s.opts.Disabled || len(entries) == 0 {
		return nil
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return s.write("set_many", keys, func(b Backend) error { return b.SetMany(ctx, entries) })
}

// RemoveItem deletes one key.
func (s *Storage) RemoveItem(ctx context.Context, key string) error {
	if s.opts.Disabled {
		return nil
	}
	return s.write("delete", []string{key}, func(b Backend) error { return b.Delete(ctx, key) })
}

// Close closes both backends.
func (s *Storage) Close() error {
	var errs []error
	if s.primary != nil {
		errs = append(errs, s.primary.Close())
	}
	errs = append(errs, s.fallback.Close())
	return errors.Join(errs...)
}

func (s *Storage) write(op string, keys []string, fn func(Backend) error) error {
	if !s.UsingFallback() {
		err := fn(s.primary)
		if err == nil {
			return nil
		}
		slog.Warn("kv_write_failed", "op", op, "backend", "primary", "error", err)
		s.degrade(op)
	}

	s.mu.Lock()
	for _, k := range keys {
		s.touched[k] = true
	}
	s.mu.Unlock()

	if err := fn(s.fallback); err != nil {
		slog.Error("kv_write_failed", "op", op, "backend", "fallback", "error", err)
		return err
	}
	return nil
}

func (s *Storage) degrade(op string) {
	s.mu.Lock()
	first := !s.degraded
	s.degraded = true
	s.mu.Unlock()
	if first {
		slog.Warn("kv_degraded", "op", op, "reason", "primary failed; using the fallback from now on")
		s.noteFallback(op)
	}
}

func (s *Storage) isTouched(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched[key]
}

func (s *Storage) noteFallback(op string) {
	if s.opts.OnFallback != nil {
		s.opts.OnFallback(op)
	}
}
