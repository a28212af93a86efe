package txn

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransaction_CommitRunsStepsInOrder(t *testing.T) {
	var order []string
	tx := New().
		Add(Step{Name: "a", Do: func(ctx context.Context) error { order = append(order, "a"); return nil }}).
		Add(Step{Name: "b", Do: func(ctx context.Context) error { order = append(order, "b"); return nil }})

	require.NoError(t, tx.Commit(context.Background()))
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestTransaction_RollsBackCompletedStepsInReverseOnFailure(t *testing.T) {
	var undone []string
	tx := New().
		Add(Step{
			Name: "a",
			Do:   func(ctx context.Context) error { return nil },
			Undo: func(ctx context.Context) error { undone = append(undone, "a"); return nil },
		}).
		Add(Step{
			Name: "b",
			Do:   func(ctx context.Context) error { return nil },
			Undo: func(ctx context.Context) error { undone = append(undone, "b"); return nil },
		}).
		Add(Step{
			Name: "c",
			Do:   func(ctx context.Context) error { return errors.New("boom") },
		})

	err := tx.Commit(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"b", "a"}, undone)
}

func TestTransaction_CancelledContextSkipsRemainingSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran bool
	tx := New().Add(Step{Name: "a", Do: func(ctx context.Context) error { ran = true; return nil }})
	err := tx.Commit(ctx)
	require.Error(t, err)
	assert.False(t, ran)
}
