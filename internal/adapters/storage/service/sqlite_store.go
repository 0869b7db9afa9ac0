package service

import (
	"context"
	"database/sql"
	"fmt"

	"dropin/internal/adapters/storage"
	domain "dropin/internal/domain/service"
)

const entryColumns = "id, guest_id, type, status, quantity, note, served_at, service_date"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new service entry store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves an Entry by its ID.
// PRE: id is non-empty
// POST: Returns the entity or an error wrapping sql.ErrNoRows
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM service_entry WHERE id = ?", id)
	e, err := scanEntry(row.Scan)
	if err == sql.ErrNoRows {
		return domain.Entry{}, fmt.Errorf("service entry not found: %w", err)
	}
	return e, err
}

// Save persists an Entry.
// PRE: entity has been validated
// POST: Entity is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, e domain.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO service_entry (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status=excluded.status, quantity=excluded.quantity, note=excluded.note`,
		e.ID, e.GuestID, e.Type, e.Status, e.Quantity, e.Note,
		e.ServedAt.Format(storage.TimeLayout), e.ServiceDate)
	return err
}

// Delete removes an Entry.
// PRE: id is non-empty
// POST: Entity with given id is removed
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM service_entry WHERE id = ?", id)
	return err
}

// ListByDate returns every entry for a service date in the order served.
func (s *SQLiteStore) ListByDate(ctx context.Context, serviceDate string) ([]domain.Entry, error) {
	return s.query(ctx, "SELECT "+entryColumns+" FROM service_entry WHERE service_date = ? ORDER BY served_at, id", serviceDate)
}

// ListByGuestAndDate returns one guest's entries for a service date.
func (s *SQLiteStore) ListByGuestAndDate(ctx context.Context, guestID, serviceDate string) ([]domain.Entry, error) {
	return s.query(ctx,
		"SELECT "+entryColumns+" FROM service_entry WHERE guest_id = ? AND service_date = ? ORDER BY served_at, id",
		guestID, serviceDate)
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(scan func(dest ...any) error) (domain.Entry, error) {
	var e domain.Entry
	var servedAt string
	if err := scan(&e.ID, &e.GuestID, &e.Type, &e.Status, &e.Quantity, &e.Note, &servedAt, &e.ServiceDate); err != nil {
		return domain.Entry{}, err
	}
	t, err := storage.ParseStoredTime(servedAt)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("failed to parse served_at: %w", err)
	}
	e.ServedAt = t
	return e, nil
}
