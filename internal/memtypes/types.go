// Package memtypes implements the per-type store/recall/clear policies for
// the four memory buckets (spec §4.C6): Working, Episodic, Semantic,
// Procedural. Each policy wraps a capability.StorageProvider with the
// type-specific limits memconfig carries (TTL, max-per-session/category,
// dedup/confidence thresholds) the way the teacher's
// internal/service/category package layers category-specific policy over
// a shared repository.
package memtypes

import (
	"context"
	"time"

	"agentmem/internal/apperr"
	"agentmem/internal/capability"
	"agentmem/internal/memconfig"
	"agentmem/internal/memdomain"
)

const component = "memtypes"

// Policy is the per-type store/recall/clear contract every bucket
// implements. StoreNew validates and persists; Recall lists candidates
// (before any cross-type fusion happens in C12); Clear removes all of a
// user/agent's memories of this type (used by working-memory session
// rollover and explicit resets).
type Policy interface {
	Type() memdomain.Type
	StoreNew(ctx context.Context, userID memdomain.UserID, agentID memdomain.AgentID, p memdomain.NewMemoryParams, now time.Time) (*memdomain.Memory, error)
	Recall(ctx context.Context, userID, agentID, query string, limit int) ([]*memdomain.Memory, error)
	Clear(ctx context.Context, userID, agentID string) error
	EnforceLimit(ctx context.Context, userID, agentID, sessionOrCategory string, now time.Time) error
}

// basePolicy shares the store/recall/clear plumbing every concrete policy
// needs; concrete policies override EnforceLimit for their own
// bucket-capacity rule.
type basePolicy struct {
	typ   memdomain.Type
	store capability.StorageProvider
}

func (b *basePolicy) Type() memdomain.Type { return b.typ }

func (b *basePolicy) storeNew(ctx context.Context, userID memdomain.UserID, agentID memdomain.AgentID, p memdomain.NewMemoryParams, now time.Time) (*memdomain.Memory, error) {
	m, err := memdomain.NewMemory(userID, agentID, b.typ, p, now)
	if err != nil {
		return nil, err
	}
	if err := b.store.Store(ctx, userID.String(), agentID.String(), m); err != nil {
		return nil, apperr.Wrap(apperr.Transient, component, "store memory", err).WithMemoryID(m.ID().String())
	}
	return m, nil
}

func (b *basePolicy) recall(ctx context.Context, userID, agentID, query string, limit int) ([]*memdomain.Memory, error) {
	typ := b.typ
	ms, err := b.store.Recall(ctx, userID, agentID, query, capability.RecallOptions{Type: &typ, Limit: limit})
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, component, "recall memories", err)
	}
	return ms, nil
}

func (b *basePolicy) clear(ctx context.Context, userID, agentID string) error {
	ms, err := b.store.Recall(ctx, userID, agentID, "", capability.RecallOptions{Type: &b.typ, Limit: 0})
	if err != nil {
		return apperr.Wrap(apperr.Transient, component, "list memories for clear", err)
	}
	for _, m := range ms {
		if err := b.store.DeleteMemory(ctx, userID, agentID, m.ID().String()); err != nil {
			return apperr.Wrap(apperr.Transient, component, "delete memory during clear", err).WithMemoryID(m.ID().String())
		}
	}
	return nil
}

// WorkingPolicy enforces the working-memory token cap and the
// max-context-item cap, scoped per session_id. TTLSeconds is not applied.
type WorkingPolicy struct {
	basePolicy
	cfg memconfig.WorkingConfig
}

func NewWorkingPolicy(store capability.StorageProvider, cfg memconfig.WorkingConfig) *WorkingPolicy {
	return &WorkingPolicy{basePolicy: basePolicy{typ: memdomain.Working, store: store}, cfg: cfg}
}

func (p *WorkingPolicy) StoreNew(ctx context.Context, userID memdomain.UserID, agentID memdomain.AgentID, np memdomain.NewMemoryParams, now time.Time) (*memdomain.Memory, error) {
	if np.SessionID == "" {
		return nil, apperr.Invalidf(component, "working memory requires session_id")
	}
	if np.TokenCount > p.cfg.MaxTokens {
		return nil, apperr.Invalidf(component, "working memory token_count %d exceeds max %d", np.TokenCount, p.cfg.MaxTokens)
	}
	return p.storeNew(ctx, userID, agentID, np, now)
}

func (p *WorkingPolicy) Recall(ctx context.Context, userID, agentID, query string, limit int) ([]*memdomain.Memory, error) {
	if limit <= 0 || limit > p.cfg.MaxContextItems {
		limit = p.cfg.MaxContextItems
	}
	return p.recall(ctx, userID, agentID, query, limit)
}

func (p *WorkingPolicy) Clear(ctx context.Context, userID, agentID string) error {
	return p.clear(ctx, userID, agentID)
}

// EnforceLimit archives the oldest working memories in the session beyond
// max_context_items (an eviction, not a hard reject, since working memory
// is meant to be a rolling window).
func (p *WorkingPolicy) EnforceLimit(ctx context.Context, userID, agentID, sessionID string, now time.Time) error {
	ms, err := p.store.Recall(ctx, userID, agentID, "", capability.RecallOptions{Type: ptr(memdomain.Working)})
	if err != nil {
		return apperr.Wrap(apperr.Transient, component, "list working memories", err)
	}
	session := filterBySession(ms, sessionID)
	if len(session) <= p.cfg.MaxContextItems {
		return nil
	}
	excess := session[:len(session)-p.cfg.MaxContextItems]
	for _, m := range excess {
		if err := m.Archive(now); err != nil {
			continue
		}
		if err := p.store.Update(ctx, m); err != nil {
			return apperr.Wrap(apperr.Transient, component, "archive excess working memory", err).WithMemoryID(m.ID().String())
		}
	}
	return nil
}

func filterBySession(ms []*memdomain.Memory, sessionID string) []*memdomain.Memory {
	out := make([]*memdomain.Memory, 0, len(ms))
	for _, m := range ms {
		if m.SessionID().String() == sessionID {
			out = append(out, m)
		}
	}
	return out
}

func ptr(t memdomain.Type) *memdomain.Type { return &t }

// EpisodicPolicy enforces spec §4's per-session episodic cap; memories at
// or above ImportanceThreshold are exempt from eviction. The consolidator
// does not read this threshold (it uses Consolidation.EpisodicImportanceFloor).
type EpisodicPolicy struct {
	basePolicy
	cfg memconfig.EpisodicConfig
}

func NewEpisodicPolicy(store capability.StorageProvider, cfg memconfig.EpisodicConfig) *EpisodicPolicy {
	return &EpisodicPolicy{basePolicy: basePolicy{typ: memdomain.Episodic, store: store}, cfg: cfg}
}

func (p *EpisodicPolicy) StoreNew(ctx context.Context, userID memdomain.UserID, agentID memdomain.AgentID, np memdomain.NewMemoryParams, now time.Time) (*memdomain.Memory, error) {
	return p.storeNew(ctx, userID, agentID, np, now)
}

func (p *EpisodicPolicy) Recall(ctx context.Context, userID, agentID, query string, limit int) ([]*memdomain.Memory, error) {
	return p.recall(ctx, userID, agentID, query, limit)
}

func (p *EpisodicPolicy) Clear(ctx context.Context, userID, agentID string) error {
	return p.clear(ctx, userID, agentID)
}

func (p *EpisodicPolicy) EnforceLimit(ctx context.Context, userID, agentID, sessionID string, now time.Time) error {
	ms, err := p.store.Recall(ctx, userID, agentID, "", capability.RecallOptions{Type: ptr(memdomain.Episodic)})
	if err != nil {
		return apperr.Wrap(apperr.Transient, component, "list episodic memories", err)
	}
	session := filterBySession(ms, sessionID)
	if len(session) <= p.cfg.MaxMemoriesPerSession {
		return nil
	}
	excess := session[:len(session)-p.cfg.MaxMemoriesPerSession]
	for _, m := range excess {
		if m.Importance() >= p.cfg.ImportanceThreshold {
			continue // important memories survive eviction; consolidation handles them instead
		}
		if err := p.store.DeleteMemory(ctx, userID.String(), agentID.String(), m.ID().String()); err != nil {
			return apperr.Wrap(apperr.Transient, component, "evict low-importance episodic memory", err).WithMemoryID(m.ID().String())
		}
	}
	return nil
}

// SemanticPolicy enforces MaxMemoriesPerCategory as a cap across all of the
// user/agent's semantic memories; the category argument is not used.
// DeduplicationThreshold is not read here, and the consolidator merges by
// Consolidation.SimilarityThreshold instead.
type SemanticPolicy struct {
	basePolicy
	cfg memconfig.SemanticConfig
}

func NewSemanticPolicy(store capability.StorageProvider, cfg memconfig.SemanticConfig) *SemanticPolicy {
	return &SemanticPolicy{basePolicy: basePolicy{typ: memdomain.Semantic, store: store}, cfg: cfg}
}

func (p *SemanticPolicy) StoreNew(ctx context.Context, userID memdomain.UserID, agentID memdomain.AgentID, np memdomain.NewMemoryParams, now time.Time) (*memdomain.Memory, error) {
	return p.storeNew(ctx, userID, agentID, np, now)
}

func (p *SemanticPolicy) Recall(ctx context.Context, userID, agentID, query string, limit int) ([]*memdomain.Memory, error) {
	return p.recall(ctx, userID, agentID, query, limit)
}

func (p *SemanticPolicy) Clear(ctx context.Context, userID, agentID string) error {
	return p.clear(ctx, userID, agentID)
}

func (p *SemanticPolicy) EnforceLimit(ctx context.Context, userID, agentID, category string, now time.Time) error {
	ms, err := p.store.Recall(ctx, userID, agentID, "", capability.RecallOptions{Type: ptr(memdomain.Semantic)})
	if err != nil {
		return apperr.Wrap(apperr.Transient, component, "list semantic memories", err)
	}
	if len(ms) <= p.cfg.MaxMemoriesPerCategory {
		return nil
	}
	excess := ms[:len(ms)-p.cfg.MaxMemoriesPerCategory]
	for _, m := range excess {
		if err := p.store.DeleteMemory(ctx, userID.String(), agentID.String(), m.ID().String()); err != nil {
			return apperr.Wrap(apperr.Transient, component, "evict excess semantic memory", err).WithMemoryID(m.ID().String())
		}
	}
	return nil
}

// ProceduralPolicy rejects memories below ConfidenceThreshold and enforces
// MaxPatternsPerCategory as a cap across all of the user/agent's procedural
// memories (the category argument is not used; MinSuccessRate is not
// applied). A procedural memory's confidence is carried in Importance
// (learned patterns use importance as confidence).
type ProceduralPolicy struct {
	basePolicy
	cfg memconfig.ProceduralConfig
}

func NewProceduralPolicy(store capability.StorageProvider, cfg memconfig.ProceduralConfig) *ProceduralPolicy {
	return &ProceduralPolicy{basePolicy: basePolicy{typ: memdomain.Procedural, store: store}, cfg: cfg}
}

func (p *ProceduralPolicy) StoreNew(ctx context.Context, userID memdomain.UserID, agentID memdomain.AgentID, np memdomain.NewMemoryParams, now time.Time) (*memdomain.Memory, error) {
	if np.Importance < p.cfg.ConfidenceThreshold {
		return nil, apperr.Invalidf(component, "procedural memory confidence %.2f below threshold %.2f", np.Importance, p.cfg.ConfidenceThreshold)
	}
	return p.storeNew(ctx, userID, agentID, np, now)
}

func (p *ProceduralPolicy) Recall(ctx context.Context, userID, agentID, query string, limit int) ([]*memdomain.Memory, error) {
	return p.recall(ctx, userID, agentID, query, limit)
}

func (p *ProceduralPolicy) Clear(ctx context.Context, userID, agentID string) error {
	return p.clear(ctx, userID, agentID)
}

func (p *ProceduralPolicy) EnforceLimit(ctx context.Context, userID, agentID, category string, now time.Time) error {
	ms, err := p.store.Recall(ctx, userID, agentID, "", capability.RecallOptions{Type: ptr(memdomain.Procedural)})
	if err != nil {
		return apperr.Wrap(apperr.Transient, component, "list procedural memories", err)
	}
	if len(ms) <= p.cfg.MaxPatternsPerCategory {
		return nil
	}
	excess := ms[:len(ms)-p.cfg.MaxPatternsPerCategory]
	for _, m := range excess {
		if err := p.store.DeleteMemory(ctx, userID.String(), agentID.String(), m.ID().String()); err != nil {
			return apperr.Wrap(apperr.Transient, component, "evict excess procedural memory", err).WithMemoryID(m.ID().String())
		}
	}
	return nil
}

// Registry dispatches to the right Policy by memdomain.Type.
type Registry struct {
	policies map[memdomain.Type]Policy
}

func NewRegistry(store capability.StorageProvider, cfg *memconfig.Config) *Registry {
	return &Registry{policies: map[memdomain.Type]Policy{
		memdomain.Working:    NewWorkingPolicy(store, cfg.Working),
		memdomain.Episodic:   NewEpisodicPolicy(store, cfg.Episodic),
		memdomain.Semantic:   NewSemanticPolicy(store, cfg.Semantic),
		memdomain.Procedural: NewProceduralPolicy(store, cfg.Procedural),
	}}
}

func (r *Registry) For(typ memdomain.Type) (Policy, error) {
	p, ok := r.policies[typ]
	if !ok {
		return nil, apperr.Invalidf(component, "no policy registered for type %q", typ)
	}
	return p, nil
}
