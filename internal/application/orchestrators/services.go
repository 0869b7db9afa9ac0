package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dropin/internal/domain/guest"
	"dropin/internal/domain/service"
)

// GuestReader loads guests for service orchestrators.
type GuestReader interface {
	GetByID(ctx context.Context, id string) (guest.Guest, error)
}

// ServiceEntryStore is the service entry persistence used by the orchestrators below.
type ServiceEntryStore interface {
	GetByID(ctx context.Context, id string) (service.Entry, error)
	Save(ctx context.Context, e service.Entry) error
	Delete(ctx context.Context, id string) error
	ListByGuestAndDate(ctx context.Context, guestID, serviceDate string) ([]service.Entry, error)
}

// ServiceDeps holds dependencies shared by the service orchestrators.
type ServiceDeps struct {
	GuestStore   GuestReader
	ServiceStore ServiceEntryStore
	Now          func() time.Time // injectable for testing
	GenerateID   func() string    // defaults to uuid
}

func (d ServiceDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d ServiceDeps) newID() string {
	if d.GenerateID != nil {
		return d.GenerateID()
	}
	return uuid.NewString()
}

// serviceLocks serializes the limit check and insert per guest per day.
var serviceLocks keyedMutex

// CheckInGuestInput carries input for the check-in orchestrator.
// EntryID may be pre-assigned by a caller that has already shown the entry.
type CheckInGuestInput struct {
	EntryID string
	GuestID string
}

// ExecuteCheckInGuest records that a guest arrived today.
// PRE: GuestID refers to an existing, non-banned guest
// POST: One checkin entry exists for the guest today
// INVARIANT: At most one checkin per guest per service date
func ExecuteCheckInGuest(ctx context.Context, input CheckInGuestInput, deps ServiceDeps) (service.Entry, error) {
	return recordService(ctx, logInput{
		EntryID:  input.EntryID,
		GuestID:  input.GuestID,
		Type:     service.TypeCheckIn,
		Quantity: 1,
	}, deps)
}

// LogServiceInput carries input for the log service orchestrator.
type LogServiceInput struct {
	EntryID  string
	GuestID  string
	Type     string
	Quantity int // meals only; 0 means 1
	Note     string
}

// ExecuteLogService records a meal, shower, laundry or bicycle service.
// PRE: GuestID refers to an existing, non-banned guest; Type is not checkin
// POST: Entry saved with its initial status
// INVARIANT: Daily limits per guest per type hold after the write
func ExecuteLogService(ctx context.Context, input LogServiceInput, deps ServiceDeps) (service.Entry, error) {
	if input.Type == service.TypeCheckIn {
		return service.Entry{}, invalidf("use check-in for arrivals")
	}
	qty := input.Quantity
	if qty == 0 {
		qty = 1
	}
	return recordService(ctx, logInput{
		EntryID:  input.EntryID,
		GuestID:  input.GuestID,
		Type:     input.Type,
		Quantity: qty,
		Note:     input.Note,
	}, deps)
}

type logInput struct {
	EntryID  string
	GuestID  string
	Type     string
	Quantity int
	Note     string
}

func recordService(ctx context.Context, in logInput, deps ServiceDeps) (service.Entry, error) {
	if in.GuestID == "" {
		return service.Entry{}, invalid(service.ErrEmptyGuestID)
	}
	g, err := deps.GuestStore.GetByID(ctx, in.GuestID)
	if err != nil {
		return service.Entry{}, fmt.Errorf("guest %s: %w", in.GuestID, ErrNotFound)
	}
	if g.IsBanned() {
		return service.Entry{}, invalid(guest.ErrGuestBanned)
	}

	now := deps.now()
	entry := service.Entry{
		ID:          in.EntryID,
		GuestID:     in.GuestID,
		Type:        in.Type,
		ServedAt:    now,
		ServiceDate: now.Format("2006-01-02"),
		Quantity:    in.Quantity,
		Status:      service.InitialStatus(in.Type),
		Note:        in.Note,
	}
	if entry.ID == "" {
		entry.ID = deps.newID()
	}
	if err := entry.Validate(); err != nil {
		return service.Entry{}, invalid(err)
	}

	unlock := serviceLocks.Lock(in.GuestID + "|" + entry.ServiceDate)
	defer unlock()

	existing, err := deps.ServiceStore.ListByGuestAndDate(ctx, in.GuestID, entry.ServiceDate)
	if err != nil {
		return service.Entry{}, fmt.Errorf("list services: %w", err)
	}
	used := 0
	for _, e := range existing {
		if e.ID == entry.ID {
			// Replayed request for an entry already recorded.
			return e, nil
		}
		if e.Type == entry.Type && e.CountsTowardLimit() {
			used += e.Quantity
		}
	}
	if limit := service.DailyLimit(entry.Type); limit > 0 && used+entry.Quantity > limit {
		if entry.Type == service.TypeCheckIn {
			return service.Entry{}, ErrAlreadyCheckedIn
		}
		return service.Entry{}, fmt.Errorf("%s: %d of %d used: %w", entry.Type, used, limit, ErrDailyLimitReached)
	}

	if err := deps.ServiceStore.Save(ctx, entry); err != nil {
		return service.Entry{}, fmt.Errorf("save service entry: %w", err)
	}
	slog.Info("service_event", "event", "service_logged", "entry_id", entry.ID, "guest_id", entry.GuestID, "type", entry.Type, "quantity", entry.Quantity)
	return entry, nil
}

// UndoServiceInput carries input for the undo orchestrator.
type UndoServiceInput struct {
	EntryID string
}

// ExecuteUndoService deletes a service entry recorded by mistake.
// PRE: EntryID refers to an existing entry
// POST: Entry is deleted; returns the deleted entry
// INVARIANT: Only today's entries can be undone
func ExecuteUndoService(ctx context.Context, input UndoServiceInput, deps ServiceDeps) (service.Entry, error) {
	if input.EntryID == "" {
		return service.Entry{}, invalidf("entry ID is required")
	}
	e, err := deps.ServiceStore.GetByID(ctx, input.EntryID)
	if err != nil {
		return service.Entry{}, fmt.Errorf("service entry %s: %w", input.EntryID, ErrNotFound)
	}
	if e.ServiceDate != deps.now().Format("2006-01-02") {
		return service.Entry{}, ErrNotToday
	}
	if err := deps.ServiceStore.Delete(ctx, input.EntryID); err != nil {
		return service.Entry{}, err
	}
	slog.Info("service_event", "event", "service_undone", "entry_id", e.ID, "guest_id", e.GuestID, "type", e.Type)
	return e, nil
}

// UpdateServiceStatusInput carries input for the status orchestrator.
type UpdateServiceStatusInput struct {
	EntryID string
	Status  string
}

// ExecuteUpdateServiceStatus moves a shower, laundry or bicycle entry along its workflow.
// PRE: EntryID refers to a tracked entry
// POST: Entry saved with the new status
func ExecuteUpdateServiceStatus(ctx context.Context, input UpdateServiceStatusInput, deps ServiceDeps) (service.Entry, error) {
	e, err := deps.ServiceStore.GetByID(ctx, input.EntryID)
	if err != nil {
		return service.Entry{}, fmt.Errorf("service entry %s: %w", input.EntryID, ErrNotFound)
	}
	from := e.Status
	if err := e.Transition(input.Status); err != nil {
		if errors.Is(err, service.ErrInvalidTransition) {
			return service.Entry{}, invalidf(fmt.Sprintf("cannot move %s from %s to %s", e.Type, from, input.Status))
		}
		return service.Entry{}, invalid(err)
	}
	if err := deps.ServiceStore.Save(ctx, e); err != nil {
		return service.Entry{}, err
	}
	slog.Info("service_event", "event", "service_status_changed", "entry_id", e.ID, "from", from, "to", e.Status)
	return e, nil
}
