// Package board keeps an in-memory view of today's guest services and
// mutates it optimistically: staff see a change at once, the server confirms
// it, and the view is rolled back if the server refuses.
//
// Every change to the view is scheduled into the write queue so a restarted
// process can restore the board without waiting on the database.
package board

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dropin/internal/adapters/clock"
	"dropin/internal/adapters/http/perf"
	"dropin/internal/application/bulk"
	"dropin/internal/application/debounce"
	"dropin/internal/application/optimistic"
	"dropin/internal/application/orchestrators"
	"dropin/internal/domain/guest"
	"dropin/internal/domain/service"
)

// DirectoryKey is the storage key of the guest directory snapshot.
const DirectoryKey = "guests:directory"

// directoryDelay coalesces guest directory encodes while guests arrive in bursts.
const directoryDelay = 250 * time.Millisecond

// SnapshotKey returns the storage key of the board for date (YYYY-MM-DD).
func SnapshotKey(date string) string { return "board:" + date }

// Scheduler accepts debounced snapshot writes.
type Scheduler interface {
	Schedule(key string, value []byte)
	FlushNow(ctx context.Context)
}

// SnapshotReader reads persisted snapshots. A nil result means no snapshot.
type SnapshotReader interface {
	GetItem(ctx context.Context, key string) []byte
}

// DayLister loads a day's entries from the system of record.
type DayLister interface {
	ListByDate(ctx context.Context, serviceDate string) ([]service.Entry, error)
}

// RollbackCounter counts optimistic rollbacks by operation.
type RollbackCounter interface {
	Rollback(op string)
}

// Deps holds the board's collaborators. Services, Queue and Storage are required.
type Deps struct {
	Services   orchestrators.ServiceDeps
	GuestStore orchestrators.GuestStore // required for ImportGuests
	Days       DayLister                // optional: authoritative source for Hydrate
	Queue      Scheduler
	Storage    SnapshotReader
	Window     *bulk.Window // optional
	Rollbacks  RollbackCounter
	Perf       *perf.Collector
	Tracer     trace.Tracer
	Clock      clock.Clock // optional: drives the directory debounce
	Now        func() time.Time
}

// GuestInfo is what the board shows for a guest.
type GuestInfo struct {
	Name   string `json:"name"`
	Banned bool   `json:"banned,omitempty"`
}

// Row is one entry as shown on the board.
type Row struct {
	service.Entry
	GuestName string `json:"guest_name"`
	Pending   bool   `json:"pending"`
}

// View is a point-in-time copy of the board.
type View struct {
	Date      string `json:"date"`
	Rows      []Row  `json:"rows"`
	CheckedIn int    `json:"checked_in"`
}

type snapshot struct {
	Date    string          `json:"date"`
	Entries []service.Entry `json:"entries"`
	Pending []string        `json:"pending,omitempty"`
}

// Board is today's service board. Safe for concurrent use.
type Board struct {
	deps      Deps
	tracer    trace.Tracer
	window    *bulk.Window
	directory *debounce.Debouncer[struct{}]

	mu      sync.Mutex
	date    string
	entries map[string]service.Entry
	pending map[string]bool
	guests  map[string]GuestInfo
}

// New creates an empty board for today.
// PRE: deps.Services, deps.Queue and deps.Storage are set
func New(deps Deps) *Board {
	b := &Board{
		deps:    deps,
		tracer:  deps.Tracer,
		window:  deps.Window,
		entries: make(map[string]service.Entry),
		pending: make(map[string]bool),
		guests:  make(map[string]GuestInfo),
	}
	if b.tracer == nil {
		b.tracer = otel.Tracer("dropin/board")
	}
	if b.window == nil {
		b.window = &bulk.Window{}
	}
	b.directory = debounce.New(func(struct{}) { b.saveDirectory() }, directoryDelay, deps.Clock)
	b.date = b.today()
	return b
}

func (b *Board) now() time.Time {
	if b.deps.Now != nil {
		return b.deps.Now()
	}
	return time.Now()
}

func (b *Board) today() string { return b.now().Format("2006-01-02") }

// Hydrate restores today's board and the guest directory from storage.
// When Days is set its entries are authoritative and the snapshot is only
// used if the service store cannot be read. Snapshot rows that were pending
// at shutdown have no remote op left, so they are dropped.
// POST: board holds the restored state, none of it pending; nothing is scheduled
func (b *Board) Hydrate(ctx context.Context) error {
	today := b.today()
	var snap snapshot
	var dir map[string]GuestInfo

	if raw := b.deps.Storage.GetItem(ctx, SnapshotKey(today)); raw != nil {
		if err := json.Unmarshal(raw, &snap); err != nil {
			slog.Warn("board_event", "event", "snapshot_corrupt", "date", today, "error", err.Error())
			snap = snapshot{}
		}
	}
	if b.deps.Days != nil {
		entries, err := b.deps.Days.ListByDate(ctx, today)
		switch {
		case err == nil:
			if snap.Date != "" && len(snap.Entries) != len(entries) {
				slog.Info("board_event", "event", "snapshot_stale", "date", today, "snapshot", len(snap.Entries), "store", len(entries))
			}
			snap = snapshot{Date: today, Entries: entries}
		case snap.Date == "":
			return err
		default:
			slog.Warn("board_event", "event", "hydrate_store_failed", "date", today, "error", err.Error())
		}
	}
	if raw := b.deps.Storage.GetItem(ctx, DirectoryKey); raw != nil {
		if err := json.Unmarshal(raw, &dir); err != nil {
			slog.Warn("board_event", "event", "directory_corrupt", "error", err.Error())
			dir = nil
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.date = today
	b.entries = make(map[string]service.Entry, len(snap.Entries))
	b.pending = make(map[string]bool)
	unconfirmed := make(map[string]bool, len(snap.Pending))
	for _, id := range snap.Pending {
		unconfirmed[id] = true
	}
	for _, e := range snap.Entries {
		if e.ServiceDate == today && !unconfirmed[e.ID] {
			b.entries[e.ID] = e
		}
	}
	if dir != nil {
		b.guests = dir
	}
	slog.Info("board_event", "event", "hydrated", "date", today, "entries", len(b.entries), "guests", len(b.guests))
	return nil
}

// View returns a copy of the board ordered by service time.
func (b *Board) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()

	v := View{Date: b.date, Rows: make([]Row, 0, len(b.entries))}
	for id, e := range b.entries {
		v.Rows = append(v.Rows, Row{Entry: e, GuestName: b.guests[e.GuestID].Name, Pending: b.pending[id]})
		if e.Type == service.TypeCheckIn {
			v.CheckedIn++
		}
	}
	sort.Slice(v.Rows, func(i, j int) bool {
		if !v.Rows[i].ServedAt.Equal(v.Rows[j].ServedAt) {
			return v.Rows[i].ServedAt.Before(v.Rows[j].ServedAt)
		}
		return v.Rows[i].ID < v.Rows[j].ID
	})
	return v
}

// IsCheckedIn reports whether the board shows a check-in for guestID today.
func (b *Board) IsCheckedIn(guestID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		if e.GuestID == guestID && e.Type == service.TypeCheckIn {
			return true
		}
	}
	return false
}

// Guest returns the directory entry for id.
func (b *Board) Guest(id string) (GuestInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.guests[id]
	return g, ok
}

// RememberGuest records g in the guest directory. The directory snapshot is
// scheduled once the burst of calls settles.
func (b *Board) RememberGuest(g guest.Guest) {
	b.mu.Lock()
	b.guests[g.ID] = GuestInfo{Name: g.DisplayName(), Banned: g.IsBanned()}
	b.mu.Unlock()
	b.directory.Call(struct{}{})
}

// Persist schedules the board and the guest directory and flushes them now.
func (b *Board) Persist(ctx context.Context) {
	b.directory.Cancel()
	b.mu.Lock()
	b.rolloverLocked()
	b.scheduleSnapshotLocked()
	b.scheduleDirectoryLocked()
	b.mu.Unlock()
	b.deps.Queue.FlushNow(ctx)
}

// rolloverLocked clears the board when the service day has changed.
func (b *Board) rolloverLocked() {
	today := b.today()
	if today == b.date {
		return
	}
	slog.Info("board_event", "event", "day_rollover", "from", b.date, "to", today)
	b.date = today
	b.entries = make(map[string]service.Entry)
	b.pending = make(map[string]bool)
}

func (b *Board) put(e service.Entry, pending bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	if e.ServiceDate != b.date {
		return
	}
	b.entries[e.ID] = e
	if pending {
		b.pending[e.ID] = true
	} else {
		delete(b.pending, e.ID)
	}
	b.scheduleSnapshotLocked()
}

// shown is an entry as it stood on the board, pending flag included, so a
// revert can put it back exactly.
type shown struct {
	entry   service.Entry
	pending bool
}

func (b *Board) remove(id string) (shown, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	if !ok {
		return shown{}, false
	}
	was := shown{entry: e, pending: b.pending[id]}
	delete(b.entries, id)
	delete(b.pending, id)
	b.scheduleSnapshotLocked()
	return was, true
}

func (b *Board) get(id string) (shown, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	return shown{entry: e, pending: b.pending[id]}, ok
}

// restore puts back what remove or get returned.
func (b *Board) restore(s shown) { b.put(s.entry, s.pending) }

func (b *Board) scheduleSnapshotLocked() {
	snap := snapshot{Date: b.date, Entries: make([]service.Entry, 0, len(b.entries))}
	for _, e := range b.entries {
		snap.Entries = append(snap.Entries, e)
	}
	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].ID < snap.Entries[j].ID })
	for id := range b.pending {
		snap.Pending = append(snap.Pending, id)
	}
	sort.Strings(snap.Pending)

	raw, err := json.Marshal(snap)
	if err != nil {
		slog.Error("board_event", "event", "snapshot_encode_failed", "error", err.Error())
		return
	}
	b.deps.Queue.Schedule(SnapshotKey(b.date), raw)
}

func (b *Board) saveDirectory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scheduleDirectoryLocked()
}

func (b *Board) scheduleDirectoryLocked() {
	raw, err := json.Marshal(b.guests)
	if err != nil {
		slog.Error("board_event", "event", "directory_encode_failed", "error", err.Error())
		return
	}
	b.deps.Queue.Schedule(DirectoryKey, raw)
}

// traced wraps a remote operation in a span and records its timing.
func (b *Board) traced(op string, attrs []attribute.KeyValue, fn optimistic.RemoteOp[service.Entry]) optimistic.RemoteOp[service.Entry] {
	return func(ctx context.Context) (service.Entry, error) {
		ctx, span := b.tracer.Start(ctx, "board."+op, trace.WithAttributes(attrs...))
		defer span.End()

		start := time.Now()
		res, err := fn(ctx)
		elapsed := time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if b.deps.Perf != nil {
			b.deps.Perf.Record(perf.Entry{
				Kind:       perf.KindRemote,
				Path:       op,
				Failed:     err != nil,
				DurationMs: float64(elapsed.Microseconds()) / 1000.0,
				Timestamp:  start,
			})
		}
		return res, err
	}
}

func (b *Board) rolledBack(op string) func(error) {
	return func(err error) {
		slog.Warn("board_event", "event", "rolled_back", "op", op, "error", err.Error())
		if b.deps.Rollbacks != nil {
			b.deps.Rollbacks.Rollback(op)
		}
	}
}

func (b *Board) confirm(e service.Entry) { b.put(e, false) }

func (b *Board) draft(guestID, serviceType string, quantity int, note string) service.Entry {
	now := b.now()
	if quantity == 0 {
		quantity = 1
	}
	return service.Entry{
		ID:          uuid.NewString(),
		GuestID:     guestID,
		Type:        serviceType,
		ServedAt:    now,
		ServiceDate: now.Format("2006-01-02"),
		Quantity:    quantity,
		Status:      service.InitialStatus(serviceType),
		Note:        note,
	}
}
