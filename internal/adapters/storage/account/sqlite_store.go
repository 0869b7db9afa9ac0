package account

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"dropin/internal/adapters/storage"
	domain "dropin/internal/domain/account"
)

const accountColumns = "id, email, display_name, password_hash, role, created_at, failed_logins, locked_until"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new account store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves an Account by its ID.
// PRE: id is non-empty
// POST: Returns the entity or an error wrapping sql.ErrNoRows
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	return s.getOne(ctx, "SELECT "+accountColumns+" FROM account WHERE id = ?", id)
}

// GetByEmail retrieves an Account by email, case-insensitively.
// PRE: email is non-empty
// POST: Returns the entity or an error wrapping sql.ErrNoRows
func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	return s.getOne(ctx, "SELECT "+accountColumns+" FROM account WHERE lower(email) = lower(?)", strings.TrimSpace(email))
}

func (s *SQLiteStore) getOne(ctx context.Context, query string, arg string) (domain.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, query, arg).Scan)
	if err == sql.ErrNoRows {
		return domain.Account{}, fmt.Errorf("account not found: %w", err)
	}
	return a, err
}

// Save persists an Account to the database.
// PRE: entity has been validated
// POST: Entity is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, a domain.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO account (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   email=excluded.email, display_name=excluded.display_name, password_hash=excluded.password_hash,
		   role=excluded.role, failed_logins=excluded.failed_logins, locked_until=excluded.locked_until`,
		a.ID, a.Email, a.DisplayName, a.PasswordHash, a.Role,
		a.CreatedAt.Format(storage.TimeLayout), a.FailedLogins, storage.FormatTime(a.LockedUntil))
	return err
}

// List retrieves Accounts based on the filter.
// PRE: filter.Limit > 0
// POST: Returns matching entities, newest first
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]domain.Account, error) {
	query := "SELECT " + accountColumns + " FROM account"
	var args []any
	if filter.Role != "" {
		query += " WHERE role = ?"
		args = append(args, filter.Role)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// Count returns the total number of accounts.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM account").Scan(&count)
	return count, err
}

func scanAccount(scan func(dest ...any) error) (domain.Account, error) {
	var a domain.Account
	var createdAt string
	var lockedUntil sql.NullString
	if err := scan(&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash, &a.Role, &createdAt, &a.FailedLogins, &lockedUntil); err != nil {
		return domain.Account{}, err
	}
	var err error
	if a.CreatedAt, err = storage.ParseStoredTime(createdAt); err != nil {
		return domain.Account{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if lockedUntil.Valid {
		if a.LockedUntil, err = storage.ParseNullTime(&lockedUntil.String); err != nil {
			return domain.Account{}, fmt.Errorf("failed to parse locked_until: %w", err)
		}
	}
	return a, nil
}
