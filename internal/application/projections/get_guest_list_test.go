package projections

import (
	"context"
	"strings"
	"testing"

	"dropin/internal/adapters/storage/guest"
	domainGuest "dropin/internal/domain/guest"
)

type mockGuestListStore struct {
	guests     []domainGuest.Guest
	lastFilter guest.ListFilter
}

// GetByID returns a seeded guest by ID.
func (m *mockGuestListStore) GetByID(_ context.Context, id string) (domainGuest.Guest, error) {
	for _, g := range m.guests {
		if g.ID == id {
			return g, nil
		}
	}
	return domainGuest.Guest{}, context.DeadlineExceeded
}

// List returns all seeded guests.
func (m *mockGuestListStore) List(_ context.Context, f guest.ListFilter) ([]domainGuest.Guest, error) {
	m.lastFilter = f
	return m.guests, nil
}

// SearchByName returns guests whose first name contains q.
func (m *mockGuestListStore) SearchByName(_ context.Context, q string, _ int) ([]domainGuest.Guest, error) {
	var out []domainGuest.Guest
	for _, g := range m.guests {
		if strings.Contains(strings.ToLower(g.FirstName), strings.ToLower(q)) {
			out = append(out, g)
		}
	}
	return out, nil
}

// Count returns the number of seeded guests.
func (m *mockGuestListStore) Count(_ context.Context) (int, error) {
	return len(m.guests), nil
}

func TestQueryGetGuestList_SearchAndDisplayName(t *testing.T) {
	store := &mockGuestListStore{guests: []domainGuest.Guest{
		{ID: "g1", FirstName: "Ada", LastName: "Lane", Status: domainGuest.StatusActive},
		{ID: "g2", FirstName: "Bo", Alias: "Bear", Status: domainGuest.StatusBanned},
	}}

	res, err := QueryGetGuestList(context.Background(), GetGuestListQuery{Search: "bo"}, GetGuestListDeps{GuestStore: store})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Guests) != 1 {
		t.Fatalf("guests = %d, want 1", len(res.Guests))
	}
	if g := res.Guests[0]; g.DisplayName != "Bear" || !g.Banned {
		t.Errorf("guest = %+v, want Bear banned", g)
	}
	if res.Total != 2 {
		t.Errorf("Total = %d, want 2", res.Total)
	}
}

func TestQueryGetGuestList_ClampsLimit(t *testing.T) {
	store := &mockGuestListStore{}
	if _, err := QueryGetGuestList(context.Background(), GetGuestListQuery{Limit: 10000}, GetGuestListDeps{GuestStore: store}); err != nil {
		t.Fatal(err)
	}
	if store.lastFilter.Limit != 100 {
		t.Errorf("limit = %d, want 100", store.lastFilter.Limit)
	}
}
