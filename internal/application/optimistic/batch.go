package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Operation bundles one apply/remote/revert triple for ExecuteBatch.
type Operation[T any] struct {
	Apply  func()
	Remote RemoteOp[T]
	Revert func()
}

// BatchOptions carries optional callbacks for ExecuteBatch.
type BatchOptions[T any] struct {
	OnSuccess func(results []T)
	OnError   func(err error)
}

// RevertFailure records a revert that failed during batch rollback.
type RevertFailure struct {
	Index int
	Err   error
}

// BatchError is returned when a batch fails. It unwraps to the remote error.
type BatchError struct {
	Err            error
	RevertFailures []RevertFailure
}

func (e *BatchError) Error() string {
	if len(e.RevertFailures) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (%d reverts failed)", e.Err, len(e.RevertFailures))
}

func (e *BatchError) Unwrap() error { return e.Err }

// ExecuteBatch applies every operation in order, then runs all remote
// operations concurrently. The first remote failure fails the whole batch,
// cancels the others' context, and reverts every applied operation.
// An empty batch succeeds with no results.
// PRE: every Operation has non-nil Apply, Remote and Revert
// POST: on success results are in operation order and no revert ran;
//
//	on failure every applied operation was reverted once and the error wraps the cause
//
// INVARIANT: all Apply calls complete before any Remote starts
func ExecuteBatch[T any](ctx context.Context, ops []Operation[T], opts BatchOptions[T]) ([]T, error) {
	results := make([]T, len(ops))
	if len(ops) == 0 {
		if opts.OnSuccess != nil {
			opts.OnSuccess(results)
		}
		return results, nil
	}

	applied := 0
	for i, op := range ops {
		if err := safeApply(op.Apply); err != nil {
			slog.Error("optimistic_batch_apply_failed", "index", i, "error", err)
			return nil, rollback(ops[:applied], fmt.Errorf("operation %d: %w", i, err), opts)
		}
		applied++
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, op := range ops {
		g.Go(func() error {
			res, err := op.Remote(gctx)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, rollback(ops, err, opts)
	}

	if opts.OnSuccess != nil {
		opts.OnSuccess(results)
	}
	return results, nil
}

// rollback reverts ops in order and reports cause through OnError.
func rollback[T any](ops []Operation[T], cause error, opts BatchOptions[T]) *BatchError {
	var failures []RevertFailure
	for i, op := range ops {
		if rerr := safeRevert(op.Revert); rerr != nil {
			failures = append(failures, RevertFailure{Index: i, Err: rerr})
			slog.Error("optimistic_batch_revert_failed", "index", i, "error", rerr)
		}
	}
	if opts.OnError != nil {
		opts.OnError(cause)
	}
	return &BatchError{Err: cause, RevertFailures: failures}
}

// ErrApplyPanicked wraps a panic raised by an Apply callback.
var ErrApplyPanicked = errors.New("optimistic: apply panicked")

func safeApply(apply func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrApplyPanicked, r)
		}
	}()
	apply()
	return nil
}
