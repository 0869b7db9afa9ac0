package kv

import (
	"context"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore implements Backend in process memory. It is the synchronous
// fallback used when no durable backend is reachable. Values are held as
// strings, mirroring a string-only key/value store.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore returns an empty MemoryStore with no expiry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, 0)}
}

// Get retrieves the value stored for key.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	s, _ := v.(string)
	return []byte(s), nil
}

// Set stores key.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.c.Set(key, string(value), gocache.NoExpiration)
	return nil
}

// SetMany stores every entry.
func (m *MemoryStore) SetMany(_ context.Context, entries []Entry) error {
	for _, e := range entries {
		m.c.Set(e.Key, string(e.Value), gocache.NoExpiration)
	}
	return nil
}

// Delete removes key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close drops every entry.
func (m *MemoryStore) Close() error {
	m.c.Flush()
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	return m.c.ItemCount()
}
