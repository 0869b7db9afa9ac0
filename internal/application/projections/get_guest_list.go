package projections

import (
	"context"

	"dropin/internal/adapters/storage/guest"
	domainGuest "dropin/internal/domain/guest"
)

// GetGuestListQuery carries query parameters.
type GetGuestListQuery struct {
	Search string
	Status string
	Limit  int
	Offset int
}

// GuestSummary is a guest as shown in the directory.
type GuestSummary struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	HousingStatus string `json:"housing_status"`
	Banned        bool   `json:"banned"`
}

// GetGuestListResult carries the query result.
type GetGuestListResult struct {
	Guests []GuestSummary `json:"guests"`
	Total  int            `json:"total"`
}

// GetGuestListDeps holds dependencies for GetGuestList.
type GetGuestListDeps struct {
	GuestStore GuestStore
}

// QueryGetGuestList lists or searches guests.
// PRE: Limit is 0 (default 100) or positive
// POST: Returns at most Limit guests; Total is the full guest count
func QueryGetGuestList(ctx context.Context, query GetGuestListQuery, deps GetGuestListDeps) (GetGuestListResult, error) {
	limit := query.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var (
		gs  []domainGuest.Guest
		err error
	)
	if query.Search != "" {
		gs, err = deps.GuestStore.SearchByName(ctx, query.Search, limit)
	} else {
		gs, err = deps.GuestStore.List(ctx, guest.ListFilter{Limit: limit, Offset: query.Offset, Status: query.Status})
	}
	if err != nil {
		return GetGuestListResult{}, err
	}

	result := GetGuestListResult{Guests: make([]GuestSummary, 0, len(gs))}
	for _, g := range gs {
		result.Guests = append(result.Guests, GuestSummary{
			ID:            g.ID,
			DisplayName:   g.DisplayName(),
			FirstName:     g.FirstName,
			LastName:      g.LastName,
			HousingStatus: g.HousingStatus,
			Banned:        g.IsBanned(),
		})
	}

	result.Total, err = deps.GuestStore.Count(ctx)
	if err != nil {
		return GetGuestListResult{}, err
	}
	return result, nil
}
