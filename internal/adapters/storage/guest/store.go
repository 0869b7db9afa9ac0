package guest

import (
	"context"

	domain "dropin/internal/domain/guest"
)

// Store persists Guest state.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.Guest, error)
	Save(ctx context.Context, value domain.Guest) error
	List(ctx context.Context, filter ListFilter) ([]domain.Guest, error)
	SearchByName(ctx context.Context, query string, limit int) ([]domain.Guest, error)
	FindByName(ctx context.Context, firstName, lastName string) (domain.Guest, bool, error)
	Count(ctx context.Context) (int, error)
}

// ListFilter carries filtering parameters for List operations.
type ListFilter struct {
	Limit  int
	Offset int
	Status string
}
