package decay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmem/internal/apperr"
	"agentmem/internal/capability"
)

type fakeBatchStore struct {
	calls [][]capability.MemoryUpdate
	err   error
}

func (f *fakeBatchStore) BatchUpdateMemories(ctx context.Context, updates []capability.MemoryUpdate) (capability.BatchUpdateResult, error) {
	f.calls = append(f.calls, updates)
	if f.err != nil {
		return capability.BatchUpdateResult{}, f.err
	}
	return capability.BatchUpdateResult{Succeeded: len(updates)}, nil
}

func TestBatchProcessor_CoalescesRepeatedEnqueues(t *testing.T) {
	store := &fakeBatchStore{}
	bp := NewBatchProcessor(store, 10, 10)

	require.NoError(t, bp.Enqueue(Result{MemoryID: "m1", ShouldUpdate: true, NewResonance: 0.4}))
	require.NoError(t, bp.Enqueue(Result{MemoryID: "m1", ShouldUpdate: true, NewResonance: 0.6}))
	assert.Equal(t, 1, bp.Pending())

	res, err := bp.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	require.Len(t, store.calls, 1)
	assert.Equal(t, 0.6, store.calls[0][0].Resonance)
}

func TestBatchProcessor_IgnoresNonUpdates(t *testing.T) {
	store := &fakeBatchStore{}
	bp := NewBatchProcessor(store, 10, 10)
	require.NoError(t, bp.Enqueue(Result{MemoryID: "m1", ShouldUpdate: false}))
	assert.Equal(t, 0, bp.Pending())
}

func TestBatchProcessor_OverflowEvictsOldest(t *testing.T) {
	store := &fakeBatchStore{}
	bp := NewBatchProcessor(store, 2, 10)

	require.NoError(t, bp.Enqueue(Result{MemoryID: "m1", ShouldUpdate: true, NewResonance: 0.1}))
	require.NoError(t, bp.Enqueue(Result{MemoryID: "m2", ShouldUpdate: true, NewResonance: 0.2}))

	err := bp.Enqueue(Result{MemoryID: "m3", ShouldUpdate: true, NewResonance: 0.3})
	require.Error(t, err)
	assert.True(t, apperr.IsOverflow(err))
	assert.Equal(t, 2, bp.Pending())
}

func TestBatchProcessor_FlushChunksAtMaxBatch(t *testing.T) {
	store := &fakeBatchStore{}
	bp := NewBatchProcessor(store, 100, 2)
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		require.NoError(t, bp.Enqueue(Result{MemoryID: id, ShouldUpdate: true, NewResonance: 0.5}))
	}

	res, err := bp.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Succeeded)
	assert.Equal(t, 3, len(store.calls)) // 2 + 2 + 1
	assert.Equal(t, 0, bp.Pending())
}

func TestBatchProcessor_FlushPropagatesTransientError(t *testing.T) {
	store := &fakeBatchStore{err: assert.AnError}
	bp := NewBatchProcessor(store, 10, 10)
	require.NoError(t, bp.Enqueue(Result{MemoryID: "m1", ShouldUpdate: true, NewResonance: 0.5}))

	_, err := bp.Flush(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))
}

func TestBatchProcessor_RunnerFlushesOnCancel(t *testing.T) {
	store := &fakeBatchStore{}
	bp := NewBatchProcessor(store, 10, 10)
	require.NoError(t, bp.Enqueue(Result{MemoryID: "m1", ShouldUpdate: true, NewResonance: 0.5}))

	ctx, cancel := context.WithCancel(context.Background())
	wait := bp.Runner(ctx, time.Hour)
	cancel()
	wait()

	assert.Equal(t, 0, bp.Pending())
}
