package board

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"dropin/internal/application/bulk"
	"dropin/internal/application/optimistic"
	"dropin/internal/application/orchestrators"
	"dropin/internal/domain/guest"
	"dropin/internal/domain/service"
)

// LogInput describes one service to record.
type LogInput struct {
	GuestID  string `json:"guest_id"`
	Type     string `json:"type"`
	Quantity int    `json:"quantity,omitempty"`
	Note     string `json:"note,omitempty"`
}

// CheckIn shows the guest as checked in, then records it.
// POST: on error the board no longer shows the pending check-in
func (b *Board) CheckIn(ctx context.Context, guestID string) (service.Entry, error) {
	e := b.draft(guestID, service.TypeCheckIn, 1, "")
	return optimistic.Execute(ctx,
		func() { b.put(e, true) },
		b.traced("check_in", attrsFor(e), func(ctx context.Context) (service.Entry, error) {
			return orchestrators.ExecuteCheckInGuest(ctx, orchestrators.CheckInGuestInput{EntryID: e.ID, GuestID: guestID}, b.deps.Services)
		}),
		func() { b.remove(e.ID) },
		optimistic.Options[service.Entry]{OnSuccess: b.confirm, OnError: b.rolledBack("check_in")},
	)
}

// LogService shows the service on the board, then records it.
func (b *Board) LogService(ctx context.Context, in LogInput) (service.Entry, error) {
	op := b.logOperation(in)
	return optimistic.Execute(ctx, op.Apply, op.Remote, op.Revert,
		optimistic.Options[service.Entry]{OnSuccess: b.confirm, OnError: b.rolledBack("log_service")},
	)
}

func (b *Board) logOperation(in LogInput) optimistic.Operation[service.Entry] {
	e := b.draft(in.GuestID, in.Type, in.Quantity, in.Note)
	return optimistic.Operation[service.Entry]{
		Apply: func() { b.put(e, true) },
		Remote: b.traced("log_service", attrsFor(e), func(ctx context.Context) (service.Entry, error) {
			return orchestrators.ExecuteLogService(ctx, orchestrators.LogServiceInput{
				EntryID:  e.ID,
				GuestID:  in.GuestID,
				Type:     in.Type,
				Quantity: in.Quantity,
				Note:     in.Note,
			}, b.deps.Services)
		}),
		Revert: func() { b.remove(e.ID) },
	}
}

// LogBatch records several services at once, e.g. meals for a group.
// Either every entry is recorded or none remain: entries the server accepted
// before another failed are undone again.
// POST: on success results are in input order
func (b *Board) LogBatch(ctx context.Context, inputs []LogInput) ([]service.Entry, error) {
	var (
		mu       sync.Mutex
		accepted []string
	)
	ops := make([]optimistic.Operation[service.Entry], len(inputs))
	for i, in := range inputs {
		op := b.logOperation(in)
		remote := op.Remote
		op.Remote = func(ctx context.Context) (service.Entry, error) {
			res, err := remote(ctx)
			if err == nil {
				mu.Lock()
				accepted = append(accepted, res.ID)
				mu.Unlock()
			}
			return res, err
		}
		ops[i] = op
	}

	results, err := optimistic.ExecuteBatch(ctx, ops, optimistic.BatchOptions[service.Entry]{
		OnSuccess: func(results []service.Entry) {
			for _, e := range results {
				b.confirm(e)
			}
		},
		OnError: b.rolledBack("log_batch"),
	})
	if err != nil {
		b.compensate(ctx, accepted)
	}
	return results, err
}

// compensate removes server-side entries left behind by a failed batch.
func (b *Board) compensate(ctx context.Context, ids []string) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range ids {
		if _, err := orchestrators.ExecuteUndoService(ctx, orchestrators.UndoServiceInput{EntryID: id}, b.deps.Services); err != nil {
			slog.Error("board_event", "event", "batch_compensation_failed", "entry_id", id, "error", err.Error())
		}
	}
}

// Undo hides the entry, then deletes it on the server.
func (b *Board) Undo(ctx context.Context, entryID string) (service.Entry, error) {
	var removed shown
	var had bool
	return optimistic.Execute(ctx,
		func() { removed, had = b.remove(entryID) },
		b.traced("undo", []attribute.KeyValue{attribute.String("dropin.entry_id", entryID)}, func(ctx context.Context) (service.Entry, error) {
			return orchestrators.ExecuteUndoService(ctx, orchestrators.UndoServiceInput{EntryID: entryID}, b.deps.Services)
		}),
		func() {
			if had {
				b.restore(removed)
			}
		},
		optimistic.Options[service.Entry]{OnError: b.rolledBack("undo")},
	)
}

// SetStatus shows the new status, then saves it on the server.
func (b *Board) SetStatus(ctx context.Context, entryID, status string) (service.Entry, error) {
	var before shown
	var had bool
	return optimistic.Execute(ctx,
		func() {
			before, had = b.get(entryID)
			if had {
				after := before.entry
				after.Status = status
				b.put(after, true)
			}
		},
		b.traced("set_status", []attribute.KeyValue{
			attribute.String("dropin.entry_id", entryID),
			attribute.String("dropin.status", status),
		}, func(ctx context.Context) (service.Entry, error) {
			return orchestrators.ExecuteUpdateServiceStatus(ctx, orchestrators.UpdateServiceStatusInput{EntryID: entryID, Status: status}, b.deps.Services)
		}),
		func() {
			if had {
				b.restore(before)
			}
		},
		optimistic.Options[service.Entry]{OnSuccess: b.confirm, OnError: b.rolledBack("set_status")},
	)
}

// ErrReservationCancelled is returned by Reservation.Execute when Cancel won
// the race against the server.
var ErrReservationCancelled = errors.New("board: reservation cancelled")

// Reservation is a pending shower or laundry slot.
type Reservation struct {
	*optimistic.Cancellable[service.Entry]
	board   *Board
	entryID string
}

// EntryID is the ID the slot is recorded under.
func (r *Reservation) EntryID() string { return r.entryID }

// Reserve prepares a shower or laundry slot that a kiosk can cancel before
// the server confirms it. Call Execute on the returned handle to run it.
func (b *Board) Reserve(guestID, serviceType string) (*Reservation, error) {
	if !service.IsTracked(serviceType) {
		return nil, &orchestrators.ValidationError{Message: "only tracked services can be reserved", Err: service.ErrNotTracked}
	}
	e := b.draft(guestID, serviceType, 1, "")
	remote := b.traced("reserve", attrsFor(e), func(ctx context.Context) (service.Entry, error) {
		return orchestrators.ExecuteLogService(ctx, orchestrators.LogServiceInput{EntryID: e.ID, GuestID: guestID, Type: serviceType}, b.deps.Services)
	})
	return &Reservation{
		Cancellable: optimistic.NewCancellable(
			func() { b.put(e, true) },
			remote,
			func() { b.remove(e.ID) },
		),
		board:   b,
		entryID: e.ID,
	}, nil
}

// Execute shows the slot and records it. If Cancel ran before the server
// answered, the recorded entry is undone and ErrReservationCancelled returned.
func (r *Reservation) Execute(ctx context.Context) (service.Entry, error) {
	res, err := r.Cancellable.Execute(ctx, optimistic.Options[service.Entry]{OnError: r.board.rolledBack("reserve")})
	if err != nil {
		return res, err
	}
	if r.State() == optimistic.StateCancelled {
		r.board.compensate(ctx, []string{res.ID})
		return res, ErrReservationCancelled
	}
	r.board.confirm(res)
	return res, nil
}

// ImportGuests runs a CSV import inside a bulk window. The guest directory
// is encoded once, before the window closes.
func (b *Board) ImportGuests(ctx context.Context, input orchestrators.ImportGuestsInput) (orchestrators.ImportGuestsResult, error) {
	if b.deps.GuestStore == nil {
		return orchestrators.ImportGuestsResult{}, errors.New("board: no guest store configured")
	}
	var result orchestrators.ImportGuestsResult
	err := bulk.Run(ctx, b.window, b.deps.Queue, func(ctx context.Context) error {
		var err error
		result, err = orchestrators.ExecuteImportGuests(ctx, input, orchestrators.ImportGuestsDeps{
			GuestStore:     b.deps.GuestStore,
			Now:            b.deps.Now,
			OnGuestCreated: func(g guest.Guest) { b.RememberGuest(g) },
		})
		b.directory.Flush()
		return err
	})
	return result, err
}

func attrsFor(e service.Entry) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("dropin.entry_id", e.ID),
		attribute.String("dropin.guest_id", e.GuestID),
		attribute.String("dropin.service_type", e.Type),
	}
}
