package projections

import (
	"context"

	"dropin/internal/adapters/storage/guest"
	domainDonation "dropin/internal/domain/donation"
	domainGuest "dropin/internal/domain/guest"
	domainService "dropin/internal/domain/service"
)

// GuestStore interface for guest queries.
type GuestStore interface {
	GetByID(ctx context.Context, id string) (domainGuest.Guest, error)
	List(ctx context.Context, filter guest.ListFilter) ([]domainGuest.Guest, error)
	SearchByName(ctx context.Context, query string, limit int) ([]domainGuest.Guest, error)
	Count(ctx context.Context) (int, error)
}

// ServiceStore interface for service entry queries.
type ServiceStore interface {
	ListByDate(ctx context.Context, serviceDate string) ([]domainService.Entry, error)
}

// DonationStore interface for donation queries.
type DonationStore interface {
	ListByDate(ctx context.Context, receivedDate string) ([]domainDonation.Donation, error)
}
