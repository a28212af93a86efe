package recall

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmem/internal/adapters/memstore"
	"agentmem/internal/capability"
	"agentmem/internal/decay"
	"agentmem/internal/memconfig"
	"agentmem/internal/memdomain"
)

func TestRecall_RejectsEmptyUserID(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, capability.Resolve(store), nil, decay.Config{}, nil)

	_, err := svc.Recall(context.Background(), "", "a1", Query{Preset: memconfig.DefaultRecallPresets().Default}, time.Now())
	require.Error(t, err)
}

func TestRecall_RejectsInvalidWeights(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, capability.Resolve(store), nil, decay.Config{}, nil)

	_, err := svc.Recall(context.Background(), "u1", "a1", Query{Preset: memconfig.RecallWeights{Vector: 0.5}}, time.Now())
	require.Error(t, err)
}

func TestRecall_FallsBackToTextOnlyAndOrdersByImportance(t *testing.T) {
	store := memstore.New()
	uid, _ := memdomain.NewUserID("u1")
	aid, _ := memdomain.NewAgentID("a1")
	now := time.Now()

	low, err := memdomain.NewMemory(uid, aid, memdomain.Semantic, memdomain.NewMemoryParams{Content: "apple pie recipe", Importance: 0.2, CreatedAt: now}, now)
	require.NoError(t, err)
	high, err := memdomain.NewMemory(uid, aid, memdomain.Semantic, memdomain.NewMemoryParams{Content: "apple orchard visit", Importance: 0.9, CreatedAt: now}, now)
	require.NoError(t, err)
	require.NoError(t, store.Store(context.Background(), "u1", "a1", low))
	require.NoError(t, store.Store(context.Background(), "u1", "a1", high))

	svc := NewService(store, capability.Resolve(store), nil, decay.Config{}, nil)
	results, err := svc.Recall(context.Background(), "u1", "a1", Query{Text: "apple", Preset: memconfig.DefaultRecallPresets().Default, Limit: 10}, now)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, high.ID(), results[0].Memory.ID())
}

func TestRecall_EnqueuesDecayUpdates(t *testing.T) {
	store := memstore.New()
	uid, _ := memdomain.NewUserID("u1")
	aid, _ := memdomain.NewAgentID("a1")
	old := time.Now().Add(-60 * 24 * time.Hour)

	m, err := memdomain.NewMemory(uid, aid, memdomain.Semantic, memdomain.NewMemoryParams{Content: "old memory", Importance: 0.5, CreatedAt: old}, old)
	require.NoError(t, err)
	require.NoError(t, store.Store(context.Background(), "u1", "a1", m))

	bp := decay.NewBatchProcessor(store, 100, 10)
	svc := NewService(store, capability.Resolve(store), nil, decay.Config{MinUpdateInterval: time.Minute, ReinforceWindow: 24 * time.Hour, SignificanceThreshold: 0.05}, bp)

	now := old.Add(90 * 24 * time.Hour)
	_, err = svc.Recall(context.Background(), "u1", "a1", Query{Text: "old", Preset: memconfig.DefaultRecallPresets().Default}, now)
	require.NoError(t, err)
	assert.Greater(t, bp.Pending(), 0)
}
