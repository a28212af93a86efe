// Package txn implements the compensating-rollback transaction helper
// (spec §4.C14): an ordered list of (do, undo) pairs, committed
// sequentially, rolled back in reverse on failure. No distributed
// coordination — single-process compensation only. Grounded on the
// teacher's internal/repository/retry.go for the bounded-attempt/timeout
// shape, adapted from a retry loop to a compensating-action ledger.
package txn

import (
	"context"

	"agentmem/internal/apperr"
)

const component = "txn"

// Step is one compensatable action: Do performs it, Undo reverses it. Undo
// is only called for steps whose Do already succeeded.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// Transaction accumulates steps and commits them in order.
type Transaction struct {
	steps []Step
}

func New() *Transaction { return &Transaction{} }

func (t *Transaction) Add(step Step) *Transaction {
	t.steps = append(t.steps, step)
	return t
}

// Commit runs each step's Do in order. On failure, it runs Undo for every
// already-succeeded step in reverse order, then returns the original
// error wrapped with the failing step's name. If ctx is cancelled between
// steps, remaining steps are skipped and accumulated undos run, mirroring
// the timeout-cancels-remaining-steps contract in spec §4.C14.
func (t *Transaction) Commit(ctx context.Context) error {
	var completed []Step
	for _, step := range t.steps {
		select {
		case <-ctx.Done():
			t.rollback(context.Background(), completed)
			return apperr.Wrap(apperr.Transient, component, "transaction cancelled before step "+step.Name, ctx.Err())
		default:
		}
		if err := step.Do(ctx); err != nil {
			t.rollback(context.Background(), completed)
			return apperr.Wrap(apperr.Transient, component, "transaction step "+step.Name+" failed", err)
		}
		completed = append(completed, step)
	}
	return nil
}

func (t *Transaction) rollback(ctx context.Context, completed []Step) {
	for i := len(completed) - 1; i >= 0; i-- {
		if completed[i].Undo == nil {
			continue
		}
		_ = completed[i].Undo(ctx) // compensations are best-effort; failures here are not escalated
	}
}
