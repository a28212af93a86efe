package facade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmem/internal/adapters/memstore"
	"agentmem/internal/memconfig"
	"agentmem/internal/memdomain"
	"agentmem/internal/recall"
)

func testConfig() *memconfig.Config {
	cfg, err := memconfig.Load()
	if err != nil {
		panic(err)
	}
	cfg.ConnectionDetection.Enabled = false // keep background discovery quiet in unit tests
	cfg.Decay.FlushInterval = 0
	return cfg
}

func TestMemoryManager_StoreRejectsEmptyIDs(t *testing.T) {
	store := memstore.New()
	mgr := New(store, nil, nil, testConfig())
	defer mgr.Close(context.Background())

	_, err := mgr.Store(context.Background(), "", "a1", memdomain.Semantic, memdomain.NewMemoryParams{Content: "x"}, time.Now())
	require.Error(t, err)
}

func TestMemoryManager_StoreAndRecall(t *testing.T) {
	store := memstore.New()
	mgr := New(store, nil, nil, testConfig())
	defer mgr.Close(context.Background())
	now := time.Now()

	m, err := mgr.Store(context.Background(), "u1", "a1", memdomain.Semantic, memdomain.NewMemoryParams{Content: "paris is the capital of france", Importance: 0.7}, now)
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID().String())

	results, err := mgr.Recall(context.Background(), "u1", "a1", recall.Query{Text: "paris", Preset: mgr.cfg.RecallPresets.Default}, now)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestMemoryManager_CreateConnectionRejectsUnknownType(t *testing.T) {
	store := memstore.New()
	mgr := New(store, nil, nil, testConfig())
	defer mgr.Close(context.Background())
	now := time.Now()

	_, err := mgr.CreateConnection(context.Background(), memdomain.NewMemoryID(), memdomain.NewMemoryID(), memdomain.ConnectionType("bogus"), 0.5, "", now)
	require.Error(t, err)
}

func TestMemoryManager_CreateConnectionPersists(t *testing.T) {
	store := memstore.New()
	mgr := New(store, nil, nil, testConfig())
	defer mgr.Close(context.Background())
	now := time.Now()

	a := memdomain.NewMemoryID()
	b := memdomain.NewMemoryID()
	conn, err := mgr.CreateConnection(context.Background(), a, b, memdomain.Related, 0.5, "shared topic", now)
	require.NoError(t, err)
	assert.Equal(t, memdomain.Related, conn.Type())
}

func TestMemoryManager_ClearWorkingMemory(t *testing.T) {
	store := memstore.New()
	mgr := New(store, nil, nil, testConfig())
	defer mgr.Close(context.Background())
	now := time.Now()

	_, err := mgr.Store(context.Background(), "u1", "a1", memdomain.Working, memdomain.NewMemoryParams{Content: "hi", SessionID: "s1"}, now)
	require.NoError(t, err)

	require.NoError(t, mgr.ClearWorkingMemory(context.Background(), "u1", "a1"))
	ctx, err := mgr.GetWorkingContext(context.Background(), "u1", "a1", "s1", now)
	require.NoError(t, err)
	assert.Empty(t, ctx)
}

func TestMemoryManager_GetStatsCoversAllTypes(t *testing.T) {
	store := memstore.New()
	mgr := New(store, nil, nil, testConfig())
	defer mgr.Close(context.Background())
	now := time.Now()

	_, err := mgr.Store(context.Background(), "u1", "a1", memdomain.Semantic, memdomain.NewMemoryParams{Content: "x", Importance: 0.5}, now)
	require.NoError(t, err)

	stats, err := mgr.GetStats(context.Background(), "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats[memdomain.Semantic].Count)
	assert.Equal(t, 0, stats[memdomain.Working].Count)
}

func TestMemoryManager_ConsolidateMemoriesRunsWithoutError(t *testing.T) {
	store := memstore.New()
	mgr := New(store, nil, nil, testConfig())
	defer mgr.Close(context.Background())
	now := time.Now()

	_, err := mgr.ConsolidateMemories(context.Background(), "u1", "a1", now)
	require.NoError(t, err)
}

func TestMemoryManager_FlushLazyDecayUpdatesWithEmptyQueue(t *testing.T) {
	store := memstore.New()
	mgr := New(store, nil, nil, testConfig())
	defer mgr.Close(context.Background())

	_, err := mgr.FlushLazyDecayUpdates(context.Background())
	require.NoError(t, err)
}
