package orchestrators

import (
	"context"
	"errors"
	"strings"
	"sync"

	"dropin/internal/adapters/email"
	"dropin/internal/domain/account"
	"dropin/internal/domain/donation"
	"dropin/internal/domain/guest"
	"dropin/internal/domain/outbox"
	"dropin/internal/domain/service"
)

var errNotFound = errors.New("not found")

// mockGuestStore implements GuestReader and GuestStore for testing.
type mockGuestStore struct {
	byID    map[string]guest.Guest
	saveErr error
}

func newMockGuestStore(guests ...guest.Guest) *mockGuestStore {
	m := &mockGuestStore{byID: make(map[string]guest.Guest)}
	for _, g := range guests {
		m.byID[g.ID] = g
	}
	return m
}

func (m *mockGuestStore) GetByID(_ context.Context, id string) (guest.Guest, error) {
	g, ok := m.byID[id]
	if !ok {
		return guest.Guest{}, errNotFound
	}
	return g, nil
}

func (m *mockGuestStore) Save(_ context.Context, g guest.Guest) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.byID[g.ID] = g
	return nil
}

func (m *mockGuestStore) FindByName(_ context.Context, first, last string) (guest.Guest, bool, error) {
	for _, g := range m.byID {
		if strings.EqualFold(g.FirstName, first) && strings.EqualFold(g.LastName, last) {
			return g, true, nil
		}
	}
	return guest.Guest{}, false, nil
}

// mockServiceStore implements ServiceEntryStore for testing.
type mockServiceStore struct {
	mu      sync.Mutex
	byID    map[string]service.Entry
	saveErr error
}

func newMockServiceStore(entries ...service.Entry) *mockServiceStore {
	m := &mockServiceStore{byID: make(map[string]service.Entry)}
	for _, e := range entries {
		m.byID[e.ID] = e
	}
	return m
}

func (m *mockServiceStore) GetByID(_ context.Context, id string) (service.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return service.Entry{}, errNotFound
	}
	return e, nil
}

func (m *mockServiceStore) Save(_ context.Context, e service.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.byID[e.ID] = e
	return nil
}

func (m *mockServiceStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

func (m *mockServiceStore) ListByGuestAndDate(_ context.Context, guestID, date string) ([]service.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []service.Entry
	for _, e := range m.byID {
		if e.GuestID == guestID && e.ServiceDate == date {
			out = append(out, e)
		}
	}
	return out, nil
}

// mockDonationStore implements DonationSaver for testing.
type mockDonationStore struct {
	saved []donation.Donation
}

func (m *mockDonationStore) Save(_ context.Context, d donation.Donation) error {
	m.saved = append(m.saved, d)
	return nil
}

// mockOutboxStore implements the outbox Store for testing.
type mockOutboxStore struct {
	byID  map[string]outbox.Entry
	order []string
}

func newMockOutboxStore(entries ...outbox.Entry) *mockOutboxStore {
	m := &mockOutboxStore{byID: make(map[string]outbox.Entry)}
	for _, e := range entries {
		_ = m.Save(context.Background(), e)
	}
	return m
}

func (m *mockOutboxStore) GetByID(_ context.Context, id string) (outbox.Entry, error) {
	e, ok := m.byID[id]
	if !ok {
		return outbox.Entry{}, errNotFound
	}
	return e, nil
}

func (m *mockOutboxStore) Save(_ context.Context, e outbox.Entry) error {
	if _, ok := m.byID[e.ID]; !ok {
		m.order = append(m.order, e.ID)
	}
	m.byID[e.ID] = e
	return nil
}

func (m *mockOutboxStore) ListPending(_ context.Context, limit int) ([]outbox.Entry, error) {
	var out []outbox.Entry
	for _, id := range m.order {
		e := m.byID[id]
		if e.Status == outbox.StatusPending || e.Status == outbox.StatusRetrying {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockOutboxStore) ListFailed(_ context.Context, _ int) ([]outbox.Entry, error) {
	return nil, nil
}

func (m *mockOutboxStore) Delete(_ context.Context, id string) error {
	delete(m.byID, id)
	return nil
}

// mockSender implements email.Sender for testing.
type mockSender struct {
	err  error
	sent []email.SendRequest
}

func (m *mockSender) Send(_ context.Context, req email.SendRequest) (email.SendResult, error) {
	if m.err != nil {
		return email.SendResult{}, m.err
	}
	m.sent = append(m.sent, req)
	return email.SendResult{MessageID: "msg-1"}, nil
}

// mockAccountStore implements the account store interfaces for testing.
type mockAccountStore struct {
	byEmail map[string]account.Account
	saves   int
}

func newMockAccountStore(accts ...account.Account) *mockAccountStore {
	m := &mockAccountStore{byEmail: make(map[string]account.Account)}
	for _, a := range accts {
		m.byEmail[a.Email] = a
	}
	return m
}

func (m *mockAccountStore) GetByEmail(_ context.Context, email string) (account.Account, error) {
	a, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return account.Account{}, errNotFound
	}
	return a, nil
}

func (m *mockAccountStore) GetByID(_ context.Context, id string) (account.Account, error) {
	for _, a := range m.byEmail {
		if a.ID == id {
			return a, nil
		}
	}
	return account.Account{}, errNotFound
}

func (m *mockAccountStore) Save(_ context.Context, a account.Account) error {
	m.saves++
	m.byEmail[a.Email] = a
	return nil
}

func (m *mockAccountStore) Count(_ context.Context) (int, error) {
	return len(m.byEmail), nil
}
