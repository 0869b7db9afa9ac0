package donation

import (
	"context"
	"database/sql"
	"fmt"

	"dropin/internal/adapters/storage"
	domain "dropin/internal/domain/donation"
)

const donationColumns = "id, donor, donor_email, kind, quantity, unit, value_cents, received_at"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new donation store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves a Donation by its ID.
// PRE: id is non-empty
// POST: Returns the entity or an error wrapping sql.ErrNoRows
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Donation, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+donationColumns+" FROM donation WHERE id = ?", id)
	d, err := scanDonation(row.Scan)
	if err == sql.ErrNoRows {
		return domain.Donation{}, fmt.Errorf("donation not found: %w", err)
	}
	return d, err
}

// Save persists a Donation. received_date is derived from ReceivedAt.
// PRE: entity has been validated
// POST: Entity is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, d domain.Donation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO donation (`+donationColumns+`, received_date) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   donor=excluded.donor, donor_email=excluded.donor_email, kind=excluded.kind,
		   quantity=excluded.quantity, unit=excluded.unit, value_cents=excluded.value_cents`,
		d.ID, d.Donor, d.DonorEmail, d.Kind, d.Quantity, d.Unit, d.ValueCents,
		d.ReceivedAt.Format(storage.TimeLayout), d.ReceivedDate())
	return err
}

// ListByDate returns donations received on a date, oldest first.
func (s *SQLiteStore) ListByDate(ctx context.Context, receivedDate string) ([]domain.Donation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+donationColumns+" FROM donation WHERE received_date = ? ORDER BY received_at, id", receivedDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Donation
	for rows.Next() {
		d, err := scanDonation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDonation(scan func(dest ...any) error) (domain.Donation, error) {
	var d domain.Donation
	var receivedAt string
	if err := scan(&d.ID, &d.Donor, &d.DonorEmail, &d.Kind, &d.Quantity, &d.Unit, &d.ValueCents, &receivedAt); err != nil {
		return domain.Donation{}, err
	}
	t, err := storage.ParseStoredTime(receivedAt)
	if err != nil {
		return domain.Donation{}, fmt.Errorf("failed to parse received_at: %w", err)
	}
	d.ReceivedAt = t
	return d, nil
}
