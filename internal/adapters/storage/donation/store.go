package donation

import (
	"context"

	domain "dropin/internal/domain/donation"
)

// Store persists donations.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.Donation, error)
	Save(ctx context.Context, value domain.Donation) error
	ListByDate(ctx context.Context, receivedDate string) ([]domain.Donation, error)
}
