package service

import (
	"context"

	domain "dropin/internal/domain/service"
)

// Store persists service entries.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.Entry, error)
	Save(ctx context.Context, value domain.Entry) error
	Delete(ctx context.Context, id string) error
	ListByDate(ctx context.Context, serviceDate string) ([]domain.Entry, error)
	ListByGuestAndDate(ctx context.Context, guestID, serviceDate string) ([]domain.Entry, error)
}
