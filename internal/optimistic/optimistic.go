// Package optimistic applies a local change before the backend confirms it
// and puts the previous state back when confirmation fails.
package optimistic

import (
	"context"
	"fmt"

	"minibus.schoolride.org/internal/fault"
)

// Snapshotter is state that can be copied and later restored.
type Snapshotter[S any] interface {
	Snapshot() S
	Restore(S)
}

// Apply snapshots target, runs mutate locally and then confirm remotely.
// A mutate error leaves target as it was. A confirm error restores the
// snapshot; transport failures come back as retryable faults.
func Apply[S any](ctx context.Context, target Snapshotter[S], mutate func() error, confirm func(context.Context) error) error {
	snap := target.Snapshot()

	if err := mutate(); err != nil {
		target.Restore(snap)
		return err
	}
	if err := confirm(ctx); err != nil {
		target.Restore(snap)
		if fault.IsInput(err) || fault.IsPolicy(err) || fault.IsTransport(err) {
			return err
		}
		return fault.TransportError{Op: "confirm", Err: fmt.Errorf("rolled back: %w", err)}
	}
	return nil
}

// Transaction is the explicit form of Apply for callers that confirm in
// several steps.
type Transaction[S any] struct {
	target Snapshotter[S]
	snap   S
	done   bool
}

func Begin[S any](target Snapshotter[S]) *Transaction[S] {
	return &Transaction[S]{target: target, snap: target.Snapshot()}
}

// Commit keeps the current state.
func (tx *Transaction[S]) Commit() {
	tx.done = true
}

// Rollback restores the snapshot unless the transaction already finished.
// It is safe to defer right after Begin.
func (tx *Transaction[S]) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	tx.target.Restore(tx.snap)
}
