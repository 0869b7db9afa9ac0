package guest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"dropin/internal/adapters/storage"
	domain "dropin/internal/domain/guest"
)

const guestColumns = "id, first_name, last_name, alias, birth_year, housing_status, status, created_at"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new guest store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves a Guest by its ID.
// PRE: id is non-empty
// POST: Returns the entity or an error wrapping sql.ErrNoRows
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Guest, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+guestColumns+" FROM guest WHERE id = ?", id)
	g, err := scanGuest(row.Scan)
	if err == sql.ErrNoRows {
		return domain.Guest{}, fmt.Errorf("guest not found: %w", err)
	}
	return g, err
}

// Save persists a Guest to the database.
// PRE: entity has been validated
// POST: Entity is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, g domain.Guest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guest (`+guestColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   first_name=excluded.first_name, last_name=excluded.last_name, alias=excluded.alias,
		   birth_year=excluded.birth_year, housing_status=excluded.housing_status, status=excluded.status`,
		g.ID, g.FirstName, g.LastName, g.Alias, g.BirthYear, g.HousingStatus, g.Status,
		g.CreatedAt.Format(storage.TimeLayout))
	return err
}

// List retrieves guests ordered by name.
// PRE: filter.Limit > 0
// POST: Returns matching entities
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]domain.Guest, error) {
	query := "SELECT " + guestColumns + " FROM guest"
	var args []any
	if filter.Status != "" {
		query += " WHERE status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY last_name, first_name LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)
	return s.query(ctx, query, args...)
}

// SearchByName matches first name, last name or alias by substring.
// PRE: query is non-empty, limit > 0
// POST: Returns up to limit guests
func (s *SQLiteStore) SearchByName(ctx context.Context, query string, limit int) ([]domain.Guest, error) {
	like := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	return s.query(ctx,
		"SELECT "+guestColumns+" FROM guest WHERE lower(first_name) LIKE ? OR lower(last_name) LIKE ? OR lower(alias) LIKE ? ORDER BY last_name, first_name LIMIT ?",
		like, like, like, limit)
}

// FindByName returns the guest with exactly this first and last name, case-insensitively.
// POST: found is false when no guest matches
func (s *SQLiteStore) FindByName(ctx context.Context, firstName, lastName string) (domain.Guest, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+guestColumns+" FROM guest WHERE lower(first_name) = lower(?) AND lower(last_name) = lower(?) LIMIT 1",
		strings.TrimSpace(firstName), strings.TrimSpace(lastName))
	g, err := scanGuest(row.Scan)
	if err == sql.ErrNoRows {
		return domain.Guest{}, false, nil
	}
	if err != nil {
		return domain.Guest{}, false, err
	}
	return g, true, nil
}

// Count returns the number of registered guests.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM guest").Scan(&n)
	return n, err
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]domain.Guest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Guest
	for rows.Next() {
		g, err := scanGuest(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGuest(scan func(dest ...any) error) (domain.Guest, error) {
	var g domain.Guest
	var createdAt string
	if err := scan(&g.ID, &g.FirstName, &g.LastName, &g.Alias, &g.BirthYear, &g.HousingStatus, &g.Status, &createdAt); err != nil {
		return domain.Guest{}, err
	}
	t, err := storage.ParseStoredTime(createdAt)
	if err != nil {
		return domain.Guest{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	g.CreatedAt = t
	return g, nil
}
