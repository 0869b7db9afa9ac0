// Package kv provides the key/value storage adapter used for local
// persistence: several backends plus a boundary that falls back to an
// in-process store and never lets storage failures escape as panics.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Backend when a key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// Entry is one key/value pair for bulk writes.
type Entry struct {
	Key   string
	Value []byte
}

// Backend is a key/value store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetMany(ctx context.Context, entries []Entry) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// prefixed joins a namespace prefix and a key.
func prefixed(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}
