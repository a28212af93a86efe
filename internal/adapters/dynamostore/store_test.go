package dynamostore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentmem/internal/memdomain"
)

func TestSplitComposite(t *testing.T) {
	userID, agentID, memoryID := splitComposite("user-1:agent-1:mem-1")
	require.Equal(t, "user-1", userID)
	require.Equal(t, "agent-1", agentID)
	require.Equal(t, "mem-1", memoryID)
}

func TestSplitComposite_FallsBackToBareID(t *testing.T) {
	userID, agentID, memoryID := splitComposite("mem-1")
	require.Empty(t, userID)
	require.Empty(t, agentID)
	require.Equal(t, "mem-1", memoryID)
}

func TestContainsFold(t *testing.T) {
	require.True(t, containsFold("Paris is the capital of France", "PARIS"))
	require.False(t, containsFold("Paris is the capital of France", "berlin"))
	require.True(t, containsFold("anything", ""))
}

func TestMemoryItemRoundTrip(t *testing.T) {
	userID, err := memdomain.NewUserID("user-1")
	require.NoError(t, err)
	agentID, err := memdomain.NewAgentID("agent-1")
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m, err := memdomain.NewMemory(userID, agentID, memdomain.Semantic, memdomain.NewMemoryParams{
		Content: "Paris is the capital of France", Keywords: []string{"paris"},
	}, now)
	require.NoError(t, err)

	item := toMemoryItem(m)
	require.Equal(t, memSK(agentID.String(), m.ID().String()), item.SK)

	rebuilt, err := fromMemoryItem(item)
	require.NoError(t, err)
	require.Equal(t, m.ID().String(), rebuilt.ID().String())
	require.Equal(t, m.Content(), rebuilt.Content())
	require.Equal(t, m.Keywords(), rebuilt.Keywords())
}
