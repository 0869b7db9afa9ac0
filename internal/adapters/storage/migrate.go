package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// migration upgrades the schema by one version.
type migration struct {
	version     int
	description string
	apply       func(db *sql.DB) error
}

// migrations is the ordered chain. Version 1 is the baseline from InitDB.
var migrations = []migration{
	{version: 1, description: "baseline schema", apply: InitDB},
	{version: 2, description: "service entry guest/type/date lookup", apply: func(db *sql.DB) error {
		_, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_service_entry_guest_type ON service_entry(guest_id, type, service_date)")
		return err
	}},
}

// LatestSchemaVersion returns the version the migration chain ends at.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// SchemaVersion returns the currently applied schema version (0 if none).
// PRE: db is a valid connection
func SchemaVersion(db *sql.DB) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_version: %w", err)
	}
	var v sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&v); err != nil {
		return 0, err
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

// MigrateDB applies every migration newer than the current schema version.
// PRE: db is a valid connection
// POST: SchemaVersion(db) == LatestSchemaVersion()
// INVARIANT: migrations are applied in order and each at most once
func MigrateDB(db *sql.DB) error {
	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := m.apply(db); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
		}
		if _, err := db.Exec("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
			m.version, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
		slog.Info("schema_migrated", "version", m.version, "description", m.description)
	}
	return nil
}
