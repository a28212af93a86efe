package prime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmem/internal/adapters/memstore"
	"agentmem/internal/capability"
	"agentmem/internal/memconfig"
	"agentmem/internal/memdomain"
)

type fakeChat struct {
	raw json.RawMessage
	err error
}

func (f *fakeChat) GenerateObject(ctx context.Context, schema capability.Schema, messages []capability.ChatMessage, opts capability.GenerateOptions) (capability.ObjectResult, error) {
	if f.err != nil {
		return capability.ObjectResult{}, f.err
	}
	return capability.ObjectResult{Raw: f.raw, Usage: capability.Usage{TotalTokens: 42}}, nil
}

func testPrimeConfig() memconfig.PrimeConfig {
	return memconfig.PrimeConfig{
		Temperature:                0.2,
		MaxTokens:                  200,
		DefaultImportanceThreshold: 0.3,
		TierThresholds:             memconfig.TierThresholds{AdvancedMinChars: 500, AdvancedMinRules: 5},
		StandardModel:              "standard",
		AdvancedModel:              "advanced",
	}
}

func TestSelectTier(t *testing.T) {
	cfg := memconfig.TierThresholds{AdvancedMinChars: 500, AdvancedMinRules: 5}
	assert.Equal(t, TierStandard, SelectTier(499, 4, cfg, nil))
	assert.Equal(t, TierAdvanced, SelectTier(501, 0, cfg, nil))
	assert.Equal(t, TierAdvanced, SelectTier(400, 6, cfg, nil))
}

func TestExtract_FiltersBelowImportanceThreshold(t *testing.T) {
	chat := &fakeChat{raw: json.RawMessage(`{"memories":[{"content":"trivial","type":"episodic","importance":0.1},{"content":"important","type":"episodic","importance":0.9}]}`)}
	e := NewExtractor(chat, testPrimeConfig(), nil)
	uid, _ := memdomain.NewUserID("u1")
	aid, _ := memdomain.NewAgentID("a1")
	now := time.Now()

	res, err := e.Extract(context.Background(), uid, aid, Message{Content: "hello", Timestamp: now}, nil, nil, now)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "important", res.Candidates[0].Content())
}

func TestExtract_SchemaFailureFallsBackToEmpty(t *testing.T) {
	chat := &fakeChat{raw: json.RawMessage(`not json`)}
	e := NewExtractor(chat, testPrimeConfig(), nil)
	uid, _ := memdomain.NewUserID("u1")
	aid, _ := memdomain.NewAgentID("a1")
	now := time.Now()

	res, err := e.Extract(context.Background(), uid, aid, Message{Content: "hello", Timestamp: now}, nil, nil, now)
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
}

func TestOrchestrator_StoresEveryMessageWithConversationDate(t *testing.T) {
	chat := &fakeChat{raw: json.RawMessage(`{"memories":[{"content":"fact","type":"semantic","importance":0.9}]}`)}
	e := NewExtractor(chat, testPrimeConfig(), nil)
	store := memstore.New()
	o := NewOrchestrator(e, store, 10)
	uid, _ := memdomain.NewUserID("u1")
	aid, _ := memdomain.NewAgentID("a1")
	now := time.Now()

	msgs := []Message{
		{Content: "first", Timestamp: now.Add(-time.Hour)},
		{Content: "second", Timestamp: now},
	}
	out, metrics, err := o.ProcessMessages(context.Background(), uid, aid, msgs, nil, now)
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.Processed)
	assert.Equal(t, 2, metrics.Extracted)
	assert.Len(t, out, 2)
	for _, m := range out {
		conversationDate, ok := m.Metadata()[memdomain.MetaOriginalConversationDate]
		require.True(t, ok)
		assert.Equal(t, now.Add(-time.Hour), conversationDate)
	}
}

func TestOrchestrator_RejectsEmptyUserID(t *testing.T) {
	e := NewExtractor(&fakeChat{}, testPrimeConfig(), nil)
	store := memstore.New()
	o := NewOrchestrator(e, store, 10)

	_, _, err := o.ProcessMessages(context.Background(), memdomain.UserID{}, memdomain.AgentID{}, []Message{{Content: "x"}}, nil, time.Now())
	require.Error(t, err)
}
