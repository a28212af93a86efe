package supabasestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentmem/internal/memdomain"
)

func testMemory(t *testing.T) *memdomain.Memory {
	t.Helper()
	userID, err := memdomain.NewUserID("user-1")
	require.NoError(t, err)
	agentID, err := memdomain.NewAgentID("agent-1")
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m, err := memdomain.NewMemory(userID, agentID, memdomain.Semantic, memdomain.NewMemoryParams{
		Content:  "Paris is the capital of France",
		Keywords: []string{"paris", "france"},
	}, now)
	require.NoError(t, err)
	return m
}

func TestToRowFromRow_RoundTripsCoreFields(t *testing.T) {
	m := testMemory(t)
	row := toRow(m)

	// Simulate the JSON round trip a real postgrest response goes through:
	// map[string]any values decoded from JSON lose their concrete Go types
	// (time.Time becomes a string, []string becomes []any), which fromRow
	// must tolerate.
	row.Fields["updated_at"] = m.UpdatedAt().Format(time.RFC3339Nano)
	row.Fields["last_accessed_at"] = m.LastAccessedAt().Format(time.RFC3339Nano)
	kw := row.Fields["keywords"].([]string)
	asAny := make([]any, len(kw))
	for i, k := range kw {
		asAny[i] = k
	}
	row.Fields["keywords"] = asAny

	rebuilt, err := fromRow(row)
	require.NoError(t, err)

	require.Equal(t, m.ID().String(), rebuilt.ID().String())
	require.Equal(t, m.UserID().String(), rebuilt.UserID().String())
	require.Equal(t, m.AgentID().String(), rebuilt.AgentID().String())
	require.Equal(t, m.Content(), rebuilt.Content())
	require.Equal(t, m.Keywords(), rebuilt.Keywords())
	require.Equal(t, m.Type(), rebuilt.Type())
	require.Equal(t, m.Status(), rebuilt.Status())
	require.WithinDuration(t, m.UpdatedAt(), rebuilt.UpdatedAt(), time.Second)
}

func TestFromRow_RejectsMalformedUserID(t *testing.T) {
	row := memoryRow{ID: "x", UserID: "", AgentID: "agent-1", Type: string(memdomain.Semantic), Status: "active", Fields: map[string]any{}}
	_, err := fromRow(row)
	require.Error(t, err)
}
