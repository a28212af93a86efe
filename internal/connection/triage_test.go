package connection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmem/internal/capability"
	"agentmem/internal/cost"
	"agentmem/internal/memconfig"
	"agentmem/internal/memdomain"
)

func newTestMemory(t *testing.T, content string, keywords []string) *memdomain.Memory {
	t.Helper()
	uid, _ := memdomain.NewUserID("u1")
	aid, _ := memdomain.NewAgentID("a1")
	m, err := memdomain.NewMemory(uid, aid, memdomain.Semantic, memdomain.NewMemoryParams{
		Content: content, Keywords: keywords, Importance: 0.5,
	}, time.Now())
	require.NoError(t, err)
	return m
}

func testThresholds() memconfig.ConnectionDetectionConfig {
	return memconfig.ConnectionDetectionConfig{
		Thresholds: memconfig.ConnectionDetectionThresholds{AutoSimilar: 0.8, AutoRelated: 0.6, LLMRequired: 0.3},
		MaxCandidates: 10,
	}
}

func TestDiscover_HighSimilarityIsAutoSimilar(t *testing.T) {
	src := newTestMemory(t, "likes coffee", nil)
	cand := newTestMemory(t, "loves coffee", nil)

	conns, err := Discover(context.Background(), src, []capability.ScoredMemory{{Memory: cand, Score: 0.9}}, testThresholds(), 0, nil, cost.New(), time.Now())
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, memdomain.Similar, conns[0].Type())
	assert.Equal(t, memdomain.TriageAutoSimilar, conns[0].TriageMethod())
}

func TestDiscover_MidBandWithoutChatSkipsWhenRulesDecline(t *testing.T) {
	src := newTestMemory(t, "a", []string{"x", "y"})
	cand := newTestMemory(t, "b", []string{"z"})

	conns, err := Discover(context.Background(), src, []capability.ScoredMemory{{Memory: cand, Score: 0.5}}, testThresholds(), 0, nil, cost.New(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestDiscover_RuleMatchDetectsOpposite(t *testing.T) {
	src := newTestMemory(t, "a", []string{"coffee", "morning", "hot", "drink"})
	cand := newTestMemory(t, "b", []string{"coffee", "morning", "hot", "drink", "not"})

	conns, err := Discover(context.Background(), src, []capability.ScoredMemory{{Memory: cand, Score: 0.5}}, testThresholds(), 0, nil, cost.New(), time.Now())
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, memdomain.Opposite, conns[0].Type())
}

func TestDiscover_SkipsSelf(t *testing.T) {
	src := newTestMemory(t, "a", nil)
	conns, err := Discover(context.Background(), src, []capability.ScoredMemory{{Memory: src, Score: 1.0}}, testThresholds(), 0, nil, cost.New(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestDiscover_RespectsMaxCandidates(t *testing.T) {
	src := newTestMemory(t, "a", nil)
	cfg := testThresholds()
	cfg.MaxCandidates = 1
	c1 := capability.ScoredMemory{Memory: newTestMemory(t, "b", nil), Score: 0.95}
	c2 := capability.ScoredMemory{Memory: newTestMemory(t, "c", nil), Score: 0.9}

	conns, err := Discover(context.Background(), src, []capability.ScoredMemory{c1, c2}, cfg, 0, nil, cost.New(), time.Now())
	require.NoError(t, err)
	assert.Len(t, conns, 1)
}
