package kv

import (
	"context"
	"fmt"
	"log/slog"

	"dropin/internal/adapters/storage"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config selects and configures the primary backend.
type Config struct {
	Driver   string
	DSN      string // postgres
	Prefix   string
	Redis    RedisConfig
	Disabled bool
}

// Open builds the primary backend for cfg.Driver and wraps it in a Storage with
// an in-memory fallback. A primary that cannot be reached is logged and skipped.
// PRE: db is required for DriverSQLite
// POST: Returns a usable Storage; error only for an unknown driver
func Open(ctx context.Context, cfg Config, db storage.SQLDB, onFallback func(op string)) (*Storage, error) {
	var primary Backend

	switch cfg.Driver {
	case DriverSQLite, "":
		if db != nil {
			primary = NewSQLiteStore(db)
		}
	case DriverPostgres:
		pg, err := NewPostgresStore(ctx, cfg.DSN, cfg.Prefix)
		if err != nil {
			slog.Warn("kv_primary_unavailable", "driver", cfg.Driver, "error", err)
		} else {
			primary = pg
		}
	case DriverRedis:
		rc := cfg.Redis
		if rc.Prefix == "" {
			rc.Prefix = cfg.Prefix
		}
		rs, err := NewRedisStore(rc)
		if err != nil {
			slog.Warn("kv_primary_unavailable", "driver", cfg.Driver, "error", err)
		} else {
			primary = rs
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("kv: unknown driver %q", cfg.Driver)
	}

	return NewStorage(ctx, primary, NewMemoryStore(), Options{
		Disabled:   cfg.Disabled,
		OnFallback: onFallback,
	}), nil
}
