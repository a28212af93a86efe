package consolidation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmem/internal/adapters/memstore"
	"agentmem/internal/capability"
	"agentmem/internal/memconfig"
	"agentmem/internal/memdomain"
)

func TestConsolidator_PromotesEligibleEpisodicMemory(t *testing.T) {
	store := memstore.New()
	cfg := memconfig.ConsolidationConfig{
		EpisodicMaxAge:          time.Hour,
		EpisodicImportanceFloor: 0.4,
		SimilarityThreshold:     0.8,
		PreserveOriginals:       true,
	}
	c := New(store, cfg)
	uid, _ := memdomain.NewUserID("u1")
	aid, _ := memdomain.NewAgentID("a1")
	now := time.Now()
	old := now.Add(-2 * time.Hour)

	m, err := memdomain.NewMemory(uid, aid, memdomain.Episodic, memdomain.NewMemoryParams{
		Content: "user prefers dark mode", Keywords: []string{"preference", "ui"}, Importance: 0.6, CreatedAt: old,
	}, old)
	require.NoError(t, err)
	require.NoError(t, store.Store(context.Background(), uid.String(), aid.String(), m))

	res, err := c.Run(context.Background(), uid, aid, now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Considered)
	assert.Equal(t, 1, res.Promoted)
	assert.Equal(t, 1, res.Archived)

	semType := memdomain.Semantic
	semantics, err := store.Recall(context.Background(), uid.String(), aid.String(), "", capability.RecallOptions{Type: &semType})
	require.NoError(t, err)
	require.Len(t, semantics, 1)
	assert.Equal(t, "user prefers dark mode", semantics[0].Content())

	original, ok, err := store.GetByID(context.Background(), uid.String(), aid.String(), m.ID().String())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, memdomain.Archived, original.Status())
}

func TestConsolidator_SkipsBelowImportanceFloor(t *testing.T) {
	store := memstore.New()
	cfg := memconfig.ConsolidationConfig{EpisodicMaxAge: time.Hour, EpisodicImportanceFloor: 0.9}
	c := New(store, cfg)
	uid, _ := memdomain.NewUserID("u1")
	aid, _ := memdomain.NewAgentID("a1")
	now := time.Now()
	old := now.Add(-2 * time.Hour)

	m, err := memdomain.NewMemory(uid, aid, memdomain.Episodic, memdomain.NewMemoryParams{
		Content: "minor detail", Importance: 0.2, CreatedAt: old,
	}, old)
	require.NoError(t, err)
	require.NoError(t, store.Store(context.Background(), uid.String(), aid.String(), m))

	res, err := c.Run(context.Background(), uid, aid, now)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Promoted)
}

func TestConsolidator_MergesNearDuplicates(t *testing.T) {
	store := memstore.New()
	cfg := memconfig.ConsolidationConfig{
		EpisodicMaxAge: time.Hour, EpisodicImportanceFloor: 0.3, SimilarityThreshold: 0.5, PreserveOriginals: false,
	}
	c := New(store, cfg)
	uid, _ := memdomain.NewUserID("u1")
	aid, _ := memdomain.NewAgentID("a1")
	now := time.Now()
	old := now.Add(-2 * time.Hour)

	for i, content := range []string{"likes tea", "enjoys tea"} {
		m, err := memdomain.NewMemory(uid, aid, memdomain.Episodic, memdomain.NewMemoryParams{
			Content: content, Keywords: []string{"tea", "drink"}, Importance: 0.5 + float64(i)*0.1, CreatedAt: old,
		}, old)
		require.NoError(t, err)
		require.NoError(t, store.Store(context.Background(), uid.String(), aid.String(), m))
	}

	res, err := c.Run(context.Background(), uid, aid, now)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Considered)
	assert.Equal(t, 1, res.Promoted)
	assert.Equal(t, 1, res.Merged)
}
