package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dropin/internal/adapters/storage"
)

// SQLiteStore implements Backend on the kv_item table.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new SQLite-backed Backend.
// PRE: db has the kv_item table (storage.InitDB)
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get retrieves the value stored for key.
// PRE: key is non-empty
// POST: Returns the value or ErrNotFound
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_item WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %q: %w", key, err)
	}
	return value, nil
}

// Set upserts one key.
// PRE: key is non-empty
// POST: key maps to value
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_item (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

// SetMany upserts every entry in one transaction.
// PRE: entries is non-empty
// POST: all entries persisted, or none on error
func (s *SQLiteStore) SetMany(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO kv_item (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Key, e.Value, now); err != nil {
			return fmt.Errorf("kv set %q: %w", e.Key, err)
		}
	}
	return tx.Commit()
}

// Delete removes key. Missing keys are not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM kv_item WHERE key = ?", key)
	return err
}

// Ping checks that the kv_item table is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	var n int
	return s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM kv_item WHERE key = ''").Scan(&n)
}

// Close is a no-op; the connection pool belongs to the caller.
func (s *SQLiteStore) Close() error {
	return nil
}
