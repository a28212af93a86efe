package memtypes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmem/internal/adapters/memstore"
	"agentmem/internal/memconfig"
	"agentmem/internal/memdomain"
)

func TestWorkingPolicy_RequiresSessionID(t *testing.T) {
	store := memstore.New()
	p := NewWorkingPolicy(store, memconfig.WorkingConfig{MaxTokens: 100, MaxContextItems: 5})
	uid, _ := memdomain.NewUserID("u1")
	aid, _ := memdomain.NewAgentID("a1")

	_, err := p.StoreNew(context.Background(), uid, aid, memdomain.NewMemoryParams{Content: "x"}, time.Now())
	require.Error(t, err)
}

func TestWorkingPolicy_EnforceLimitArchivesOldest(t *testing.T) {
	store := memstore.New()
	cfg := memconfig.WorkingConfig{MaxTokens: 1000, MaxContextItems: 2}
	p := NewWorkingPolicy(store, cfg)
	uid, _ := memdomain.NewUserID("u1")
	aid, _ := memdomain.NewAgentID("a1")
	now := time.Now()

	for i := 0; i < 4; i++ {
		_, err := p.StoreNew(context.Background(), uid, aid, memdomain.NewMemoryParams{
			Content: "turn", SessionID: "s1", CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	require.NoError(t, p.EnforceLimit(context.Background(), uid.String(), aid.String(), "s1", now.Add(time.Hour)))

	active, err := p.Recall(context.Background(), uid.String(), aid.String(), "", 10)
	require.NoError(t, err)
	var activeCount int
	for _, m := range active {
		if m.Status() == memdomain.Active {
			activeCount++
		}
	}
	assert.LessOrEqual(t, activeCount, cfg.MaxContextItems)
}

func TestProceduralPolicy_RejectsBelowConfidenceThreshold(t *testing.T) {
	store := memstore.New()
	p := NewProceduralPolicy(store, memconfig.ProceduralConfig{ConfidenceThreshold: 0.7, MaxPatternsPerCategory: 10})
	uid, _ := memdomain.NewUserID("u1")
	aid, _ := memdomain.NewAgentID("a1")

	_, err := p.StoreNew(context.Background(), uid, aid, memdomain.NewMemoryParams{Content: "pattern", Importance: 0.5}, time.Now())
	require.Error(t, err)
}

func TestRegistry_ForUnknownTypeErrors(t *testing.T) {
	store := memstore.New()
	cfg, err := memconfig.Load()
	require.NoError(t, err)
	reg := NewRegistry(store, cfg)

	_, err = reg.For(memdomain.Type("bogus"))
	require.Error(t, err)

	p, err := reg.For(memdomain.Semantic)
	require.NoError(t, err)
	assert.Equal(t, memdomain.Semantic, p.Type())
}
