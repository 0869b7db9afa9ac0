package optimistic

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// State is the lifecycle position of a Cancellable.
type State string

const (
	StateIdle       State = "idle"
	StateApplied    State = "applied"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
	StateCancelled  State = "cancelled"
)

// ErrAlreadyExecuted is returned when Execute is called more than once.
var ErrAlreadyExecuted = errors.New("optimistic: operation already executed")

// Cancellable is an optimistic operation that can be reverted from outside
// before its remote operation settles. Cancel does not abort the remote call.
// apply and revert run under the handle's lock and must not call back into it.
type Cancellable[T any] struct {
	apply  func()
	remote RemoteOp[T]
	revert func()

	mu      sync.Mutex
	applied bool
	state   State
}

// NewCancellable wraps an apply/remote/revert triple.
// PRE: apply, remote and revert are non-nil
// POST: returns a handle in StateIdle
func NewCancellable[T any](apply func(), remote RemoteOp[T], revert func()) *Cancellable[T] {
	return &Cancellable[T]{apply: apply, remote: remote, revert: revert, state: StateIdle}
}

// Execute applies, runs the remote operation and reverts on failure unless
// Cancel already reverted.
// PRE: handle is idle
// POST: state is committed, rolled_back or cancelled; a panicking apply
// returns ErrApplyPanicked and never calls remote
// INVARIANT: revert runs at most once across Execute and Cancel
func (c *Cancellable[T]) Execute(ctx context.Context, opts Options[T]) (T, error) {
	var zero T

	if err := c.begin(); err != nil {
		if errors.Is(err, ErrApplyPanicked) && opts.OnError != nil {
			opts.OnError(err)
		}
		return zero, err
	}

	result, err := c.remote(ctx)

	c.mu.Lock()
	if err != nil {
		if c.applied {
			c.applied = false
			c.state = StateRolledBack
			if rerr := safeRevert(c.revert); rerr != nil {
				slog.Error("optimistic_revert_failed", "error", rerr, "cause", err)
			}
		}
		c.mu.Unlock()
		if opts.OnError != nil {
			opts.OnError(err)
		}
		return zero, err
	}
	if c.state == StateApplied {
		c.state = StateCommitted
	}
	c.mu.Unlock()

	if opts.OnSuccess != nil {
		opts.OnSuccess(result)
	}
	return result, nil
}

// begin moves an idle handle to applied. A panicking apply leaves the
// handle rolled back with nothing to revert.
func (c *Cancellable[T]) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return ErrAlreadyExecuted
	}
	if err := safeApply(c.apply); err != nil {
		c.state = StateRolledBack
		slog.Error("optimistic_apply_failed", "error", err)
		return err
	}
	c.applied = true
	c.state = StateApplied
	return nil
}

// Cancel reverts the optimistic effect while the remote operation is still
// pending. It is a no-op once the handle is committed or rolled back.
// Safe to call at any time and from any goroutine.
// POST: IsApplied() is false unless the handle is committed
func (c *Cancellable[T]) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.applied || c.state != StateApplied {
		return
	}
	c.applied = false
	c.state = StateCancelled
	if err := safeRevert(c.revert); err != nil {
		slog.Error("optimistic_cancel_revert_failed", "error", err)
	}
}

// IsApplied reports whether the optimistic effect is currently in place.
func (c *Cancellable[T]) IsApplied() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

// State returns the current lifecycle state.
func (c *Cancellable[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
