package decay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmem/internal/memdomain"
)

func testCfg() Config {
	return Config{
		MinUpdateInterval:     time.Minute,
		ReinforceWindow:       24 * time.Hour,
		SignificanceThreshold: 0.05,
	}
}

func mustMemory(t *testing.T, typ memdomain.Type, created time.Time) *memdomain.Memory {
	t.Helper()
	uid, err := memdomain.NewUserID("u1")
	require.NoError(t, err)
	aid, err := memdomain.NewAgentID("a1")
	require.NoError(t, err)
	m, err := memdomain.NewMemory(uid, aid, typ, memdomain.NewMemoryParams{
		Content:       "hello",
		SessionID:     "s1",
		Importance:    0.5,
		Reinforceable: true,
		CreatedAt:     created,
	}, created)
	require.NoError(t, err)
	return m
}

func TestCalculate_ArchivedNeverDecays(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	created := now.Add(-365 * 24 * time.Hour)
	m := mustMemory(t, memdomain.Episodic, created)
	require.NoError(t, m.Archive(created.Add(time.Hour)))

	r := Calculate(m, now, testCfg())
	assert.False(t, r.ShouldUpdate)
	assert.Equal(t, m.StoredResonance(), r.NewResonance)
}

func TestCalculate_SuppressesWithinMinUpdateInterval(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	created := now.Add(-40 * 24 * time.Hour)
	m := mustMemory(t, memdomain.Episodic, created)

	r := Calculate(m, created.Add(30*time.Second), testCfg())
	assert.False(t, r.ShouldUpdate)
}

func TestCalculate_ReinforcementWithinWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	created := now.Add(-40 * 24 * time.Hour)
	m := mustMemory(t, memdomain.Episodic, created)
	lastAccess := now.Add(-2 * time.Hour)
	require.NoError(t, m.ApplyDecayResult(0.3, lastAccess, false, lastAccess))

	accessAt := now.Add(-time.Hour)
	r := Calculate(m, accessAt, testCfg())
	assert.True(t, r.Reinforced)
	assert.Greater(t, r.NewResonance, 0.3)
	assert.LessOrEqual(t, r.NewResonance, 1.0)
}

func TestCalculate_NeverDecayHoldsAtFull(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	created := now.Add(-500 * 24 * time.Hour)
	uid, _ := memdomain.NewUserID("u1")
	aid, _ := memdomain.NewAgentID("a1")
	m, err := memdomain.NewMemory(uid, aid, memdomain.Semantic, memdomain.NewMemoryParams{
		Content:    "fact",
		Importance: 0.8,
		NeverDecay: true,
		CreatedAt:  created,
	}, created)
	require.NoError(t, err)

	r := Calculate(m, now, testCfg())
	assert.False(t, r.ShouldUpdate)
	assert.Equal(t, 1.0, m.StoredResonance())
}

func TestCalculate_ExponentialDecayAtHalfLife(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := mustMemory(t, memdomain.Episodic, created) // half-life 30 days

	now := created.Add(30 * 24 * time.Hour)
	r := Calculate(m, now, testCfg())
	assert.InDelta(t, 0.5, r.NewResonance, 0.01)
	assert.True(t, r.ShouldUpdate)
}

func TestCalculate_CustomHalfLifeOverridesDefault(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	uid, _ := memdomain.NewUserID("u1")
	aid, _ := memdomain.NewAgentID("a1")
	custom := 10.0
	m, err := memdomain.NewMemory(uid, aid, memdomain.Episodic, memdomain.NewMemoryParams{
		Content:            "x",
		Importance:         0.5,
		CustomHalfLifeDays: &custom,
		CreatedAt:          created,
	}, created)
	require.NoError(t, err)

	now := created.Add(10 * 24 * time.Hour)
	r := Calculate(m, now, testCfg())
	assert.InDelta(t, 0.5, r.NewResonance, 0.01)
}

func TestCalculateBatch_PreservesOrder(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m1 := mustMemory(t, memdomain.Episodic, created)
	m2 := mustMemory(t, memdomain.Semantic, created)

	results := CalculateBatch([]*memdomain.Memory{m1, m2}, created.Add(60*24*time.Hour), testCfg())
	require.Len(t, results, 2)
	assert.Equal(t, m1.ID().String(), results[0].MemoryID)
	assert.Equal(t, m2.ID().String(), results[1].MemoryID)
}
