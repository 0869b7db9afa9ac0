package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	outboxStore "dropin/internal/adapters/storage/outbox"
	domain "dropin/internal/domain/outbox"
)

// ActionExecutor executes a specific type of external action.
type ActionExecutor interface {
	// Execute runs the external action with the given payload.
	// Returns the external ID (e.g. provider message ID) and any error.
	Execute(ctx context.Context, payload string) (string, error)
}

// AttemptObserver is told about every delivery attempt.
type AttemptObserver interface {
	OutboxAttempt(action string, err error)
}

// OutboxProcessor retries queued external actions with exponential backoff.
type OutboxProcessor struct {
	store     outboxStore.Store
	executors map[string]ActionExecutor
	baseDelay time.Duration
	maxDelay  time.Duration
	batchSize int
	now       func() time.Time
	observer  AttemptObserver
}

// ProcessorOption configures an OutboxProcessor.
type ProcessorOption func(*OutboxProcessor)

// WithBackoff sets the base and maximum retry delay.
func WithBackoff(base, max time.Duration) ProcessorOption {
	return func(p *OutboxProcessor) {
		p.baseDelay = base
		p.maxDelay = max
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *OutboxProcessor) { p.now = now }
}

// WithAttemptObserver reports attempts to o.
func WithAttemptObserver(o AttemptObserver) ProcessorOption {
	return func(p *OutboxProcessor) { p.observer = o }
}

// NewOutboxProcessor creates a new outbox processor.
func NewOutboxProcessor(store outboxStore.Store, executors map[string]ActionExecutor, opts ...ProcessorOption) *OutboxProcessor {
	p := &OutboxProcessor{
		store:     store,
		executors: executors,
		baseDelay: 30 * time.Second,
		maxDelay:  1 * time.Hour,
		batchSize: 10,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessPending attempts every pending entry whose backoff has elapsed.
// PRE: Context is valid
// POST: Due entries attempted and saved; returns the number attempted
func (p *OutboxProcessor) ProcessPending(ctx context.Context) (int, error) {
	entries, err := p.store.ListPending(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending outbox entries: %w", err)
	}

	now := p.now()
	attempted := 0
	for _, entry := range entries {
		if entry.DueAt(p.baseDelay, p.maxDelay).After(now) {
			continue
		}
		attempted++
		if err := p.attempt(ctx, entry); err != nil {
			slog.Error("outbox_process_failed", "entry_id", entry.ID, "action_type", entry.ActionType, "error", err.Error())
		}
	}
	return attempted, nil
}

func (p *OutboxProcessor) attempt(ctx context.Context, entry domain.Entry) error {
	executor, ok := p.executors[entry.ActionType]
	if !ok {
		entry.MarkAbandoned()
		entry.ErrorMessage = "no executor registered for action type: " + entry.ActionType
		return p.store.Save(ctx, entry)
	}

	entry.MarkAttempt(p.now())
	externalID, err := executor.Execute(ctx, entry.Payload)
	if err != nil {
		entry.MarkFailed(err)
		slog.Warn("outbox_action_failed", "entry_id", entry.ID, "attempt", entry.Attempts, "error", err.Error())
	} else {
		entry.MarkSuccess(externalID)
		slog.Info("outbox_action_succeeded", "entry_id", entry.ID, "action_type", entry.ActionType, "external_id", externalID)
	}
	if p.observer != nil {
		p.observer.OutboxAttempt(entry.ActionType, err)
	}
	return p.store.Save(ctx, entry)
}

// ProcessSingle manually processes a single outbox entry, ignoring backoff.
// PRE: entryID is non-empty
// POST: Entry is attempted, status updated
func (p *OutboxProcessor) ProcessSingle(ctx context.Context, entryID string) error {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("outbox entry %s: %w", entryID, ErrNotFound)
	}
	if entry.IsTerminal() {
		return invalidf(fmt.Sprintf("entry %s is in terminal state and cannot be retried", entryID))
	}
	if _, ok := p.executors[entry.ActionType]; !ok {
		return fmt.Errorf("no executor registered for action type: %s", entry.ActionType)
	}
	return p.attempt(ctx, entry)
}

// AbandonEntry marks an entry as abandoned by admin.
// PRE: entryID is non-empty
// POST: Entry status set to abandoned
func (p *OutboxProcessor) AbandonEntry(ctx context.Context, entryID string) error {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("outbox entry %s: %w", entryID, ErrNotFound)
	}
	entry.MarkAbandoned()
	return p.store.Save(ctx, entry)
}

// StartBackgroundWorker processes pending entries every interval until ctx is done.
// The returned channel is closed once the worker has stopped.
func StartBackgroundWorker(ctx context.Context, processor *OutboxProcessor, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
				if _, err := processor.ProcessPending(runCtx); err != nil {
					slog.Error("outbox_background_process_failed", "error", err.Error())
				}
				cancel()
			case <-ctx.Done():
				slog.Info("outbox_background_worker_stopped")
				return
			}
		}
	}()
	return done
}
