package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"dropin/internal/domain/guest"
	"dropin/internal/domain/service"
)

var serviceNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func activeGuest(id string) guest.Guest {
	return guest.Guest{ID: id, FirstName: "Sam", HousingStatus: guest.HousingUnknown, Status: guest.StatusActive}
}

func serviceDeps(gs *mockGuestStore, ss *mockServiceStore) ServiceDeps {
	n := 0
	var mu sync.Mutex
	return ServiceDeps{
		GuestStore:   gs,
		ServiceStore: ss,
		Now:          func() time.Time { return serviceNow },
		GenerateID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("e-%d", n)
		},
	}
}

// TestExecuteCheckInGuest_OncePerDay verifies a second check-in the same day is refused.
func TestExecuteCheckInGuest_OncePerDay(t *testing.T) {
	ss := newMockServiceStore()
	deps := serviceDeps(newMockGuestStore(activeGuest("g1")), ss)

	e, err := ExecuteCheckInGuest(context.Background(), CheckInGuestInput{GuestID: "g1"}, deps)
	if err != nil {
		t.Fatalf("first check-in: %v", err)
	}
	if e.ServiceDate != "2026-03-02" || e.Status != service.StatusDone {
		t.Errorf("entry = %+v, want done on 2026-03-02", e)
	}

	_, err = ExecuteCheckInGuest(context.Background(), CheckInGuestInput{GuestID: "g1"}, deps)
	if !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Errorf("second check-in err = %v, want ErrAlreadyCheckedIn", err)
	}
}

// TestExecuteCheckInGuest_ReplayReturnsExisting verifies a pre-assigned ID is idempotent.
func TestExecuteCheckInGuest_ReplayReturnsExisting(t *testing.T) {
	ss := newMockServiceStore()
	deps := serviceDeps(newMockGuestStore(activeGuest("g1")), ss)

	for i := 0; i < 2; i++ {
		e, err := ExecuteCheckInGuest(context.Background(), CheckInGuestInput{EntryID: "fixed", GuestID: "g1"}, deps)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if e.ID != "fixed" {
			t.Errorf("ID = %q, want fixed", e.ID)
		}
	}
	if len(ss.byID) != 1 {
		t.Errorf("stored entries = %d, want 1", len(ss.byID))
	}
}

func TestExecuteCheckInGuest_BannedRefused(t *testing.T) {
	g := activeGuest("g1")
	g.Status = guest.StatusBanned
	deps := serviceDeps(newMockGuestStore(g), newMockServiceStore())

	_, err := ExecuteCheckInGuest(context.Background(), CheckInGuestInput{GuestID: "g1"}, deps)
	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, guest.ErrGuestBanned) {
		t.Errorf("err = %v, want validation error wrapping ErrGuestBanned", err)
	}
}

func TestExecuteCheckInGuest_UnknownGuest(t *testing.T) {
	deps := serviceDeps(newMockGuestStore(), newMockServiceStore())
	_, err := ExecuteCheckInGuest(context.Background(), CheckInGuestInput{GuestID: "nobody"}, deps)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// TestExecuteLogService_MealLimit verifies meal quantities sum to at most three per day.
func TestExecuteLogService_MealLimit(t *testing.T) {
	deps := serviceDeps(newMockGuestStore(activeGuest("g1")), newMockServiceStore())
	ctx := context.Background()

	if _, err := ExecuteLogService(ctx, LogServiceInput{GuestID: "g1", Type: service.TypeMeal, Quantity: 2}, deps); err != nil {
		t.Fatalf("first meal: %v", err)
	}
	_, err := ExecuteLogService(ctx, LogServiceInput{GuestID: "g1", Type: service.TypeMeal, Quantity: 2}, deps)
	if !errors.Is(err, ErrDailyLimitReached) {
		t.Fatalf("err = %v, want ErrDailyLimitReached", err)
	}
	if _, err := ExecuteLogService(ctx, LogServiceInput{GuestID: "g1", Type: service.TypeMeal}, deps); err != nil {
		t.Errorf("third serving: %v", err)
	}
}

// TestExecuteLogService_CancelledDoesNotCount verifies a cancelled shower frees the slot.
func TestExecuteLogService_CancelledDoesNotCount(t *testing.T) {
	ss := newMockServiceStore(service.Entry{
		ID: "old", GuestID: "g1", Type: service.TypeShower, ServiceDate: "2026-03-02",
		Quantity: 1, Status: service.StatusCancelled,
	})
	deps := serviceDeps(newMockGuestStore(activeGuest("g1")), ss)

	e, err := ExecuteLogService(context.Background(), LogServiceInput{GuestID: "g1", Type: service.TypeShower}, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Status != service.StatusWaitlisted {
		t.Errorf("status = %q, want waitlisted", e.Status)
	}
	_, err = ExecuteLogService(context.Background(), LogServiceInput{GuestID: "g1", Type: service.TypeShower}, deps)
	if !errors.Is(err, ErrDailyLimitReached) {
		t.Errorf("second shower err = %v, want ErrDailyLimitReached", err)
	}
}

func TestExecuteLogService_BicycleUnlimited(t *testing.T) {
	deps := serviceDeps(newMockGuestStore(activeGuest("g1")), newMockServiceStore())
	for i := 0; i < 4; i++ {
		if _, err := ExecuteLogService(context.Background(), LogServiceInput{GuestID: "g1", Type: service.TypeBicycle}, deps); err != nil {
			t.Fatalf("repair %d: %v", i, err)
		}
	}
}

func TestExecuteLogService_RejectsCheckInType(t *testing.T) {
	deps := serviceDeps(newMockGuestStore(activeGuest("g1")), newMockServiceStore())
	_, err := ExecuteLogService(context.Background(), LogServiceInput{GuestID: "g1", Type: service.TypeCheckIn}, deps)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("err = %v, want *ValidationError", err)
	}
}

// TestExecuteLogService_ConcurrentShowersOnlyOneWins verifies the per-guest lock.
func TestExecuteLogService_ConcurrentShowersOnlyOneWins(t *testing.T) {
	deps := serviceDeps(newMockGuestStore(activeGuest("g1")), newMockServiceStore())

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ExecuteLogService(context.Background(), LogServiceInput{GuestID: "g1", Type: service.TypeShower}, deps); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Errorf("successful showers = %d, want 1", ok)
	}
}

func TestExecuteUndoService_TodayOnly(t *testing.T) {
	ss := newMockServiceStore(
		service.Entry{ID: "today", GuestID: "g1", Type: service.TypeMeal, ServiceDate: "2026-03-02", Quantity: 1, Status: service.StatusDone},
		service.Entry{ID: "yesterday", GuestID: "g1", Type: service.TypeMeal, ServiceDate: "2026-03-01", Quantity: 1, Status: service.StatusDone},
	)
	deps := serviceDeps(newMockGuestStore(), ss)

	if _, err := ExecuteUndoService(context.Background(), UndoServiceInput{EntryID: "yesterday"}, deps); !errors.Is(err, ErrNotToday) {
		t.Errorf("undo yesterday err = %v, want ErrNotToday", err)
	}
	e, err := ExecuteUndoService(context.Background(), UndoServiceInput{EntryID: "today"}, deps)
	if err != nil {
		t.Fatalf("undo today: %v", err)
	}
	if e.ID != "today" {
		t.Errorf("returned ID = %q, want today", e.ID)
	}
	if _, ok := ss.byID["today"]; ok {
		t.Error("entry should be deleted")
	}
	if _, err := ExecuteUndoService(context.Background(), UndoServiceInput{EntryID: "today"}, deps); !errors.Is(err, ErrNotFound) {
		t.Errorf("second undo err = %v, want ErrNotFound", err)
	}
}

func TestExecuteUpdateServiceStatus_Transitions(t *testing.T) {
	ss := newMockServiceStore(service.Entry{
		ID: "s1", GuestID: "g1", Type: service.TypeLaundry, ServiceDate: "2026-03-02", Quantity: 1, Status: service.StatusWaitlisted,
	})
	deps := serviceDeps(newMockGuestStore(), ss)
	ctx := context.Background()

	if _, err := ExecuteUpdateServiceStatus(ctx, UpdateServiceStatusInput{EntryID: "s1", Status: service.StatusDone}, deps); err == nil {
		t.Error("waitlisted -> done should be rejected")
	}
	e, err := ExecuteUpdateServiceStatus(ctx, UpdateServiceStatusInput{EntryID: "s1", Status: service.StatusInProgress}, deps)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if e.Status != service.StatusInProgress || ss.byID["s1"].Status != service.StatusInProgress {
		t.Errorf("status = %q, stored %q, want in_progress", e.Status, ss.byID["s1"].Status)
	}
}
