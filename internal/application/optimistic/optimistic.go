// Package optimistic applies a local state change immediately, runs the
// matching remote operation, and restores the local state if the remote
// operation fails.
//
// apply and revert are synchronous and must be inverses with respect to the
// observable state. The remote operation is never started before apply returns.
package optimistic

import (
	"context"
	"fmt"
	"log/slog"
)

// RemoteOp is the remote half of an optimistic operation.
type RemoteOp[T any] func(ctx context.Context) (T, error)

// Options carries optional callbacks for Execute.
type Options[T any] struct {
	OnSuccess func(result T)
	OnError   func(err error)
}

// Execute runs apply, then remote. If remote fails, revert runs exactly once and
// the original error is returned.
// PRE: apply, remote and revert are non-nil
// POST: apply called once; revert called once iff remote returned an error
// INVARIANT: the returned error is the remote error, never a revert failure
func Execute[T any](ctx context.Context, apply func(), remote RemoteOp[T], revert func(), opts Options[T]) (T, error) {
	apply()

	result, err := remote(ctx)
	if err != nil {
		if rerr := safeRevert(revert); rerr != nil {
			slog.Error("optimistic_revert_failed", "error", rerr, "cause", err)
		}
		if opts.OnError != nil {
			opts.OnError(err)
		}
		var zero T
		return zero, err
	}

	if opts.OnSuccess != nil {
		opts.OnSuccess(result)
	}
	return result, nil
}

// safeRevert runs revert and converts a panic into an error.
func safeRevert(revert func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("revert panicked: %v", r)
		}
	}()
	revert()
	return nil
}
