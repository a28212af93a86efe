package temporal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmem/internal/adapters/memstore"
	"agentmem/internal/memdomain"
)

func TestAnalyze_WritesInsightsToMetadata(t *testing.T) {
	store := memstore.New()
	a := New(store)
	uid, _ := memdomain.NewUserID("u1")
	aid, _ := memdomain.NewAgentID("a1")
	now := time.Now()

	m, err := memdomain.NewMemory(uid, aid, memdomain.Semantic, memdomain.NewMemoryParams{
		Content: "fact", Importance: 0.5, CreatedAt: now.Add(-48 * time.Hour),
	}, now.Add(-48*time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.Store(context.Background(), uid.String(), aid.String(), m))

	require.NoError(t, a.Analyze(context.Background(), uid.String(), aid.String(), m, now))

	v, ok := m.Metadata()[memdomain.MetaTemporalInsights]
	require.True(t, ok)
	ins, ok := v.(Insights)
	require.True(t, ok)
	assert.Greater(t, ins.RecencyScore, 0.0)
	assert.LessOrEqual(t, ins.RecencyScore, 1.0)
}

func TestAnalyze_RespectsCancellation(t *testing.T) {
	store := memstore.New()
	a := New(store)
	uid, _ := memdomain.NewUserID("u1")
	aid, _ := memdomain.NewAgentID("a1")
	now := time.Now()

	m, err := memdomain.NewMemory(uid, aid, memdomain.Semantic, memdomain.NewMemoryParams{Content: "fact", Importance: 0.5}, now)
	require.NoError(t, err)
	require.NoError(t, store.Store(context.Background(), uid.String(), aid.String(), m))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = a.Analyze(ctx, uid.String(), aid.String(), m, now)
	require.Error(t, err)

	_, ok := m.Metadata()[memdomain.MetaTemporalInsights]
	assert.False(t, ok)
}
