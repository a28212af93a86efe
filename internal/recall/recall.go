// Package recall implements hybrid retrieval with four-dimensional score
// fusion (spec §4.C12). Grounded on the teacher's
// domain/services/similarity_calculator.go for the scoring-math style and
// internal/repository/focused_interfaces.go's optional-capability
// fallback chain (hybrid -> vector-only -> text-only).
package recall

import (
	"context"
	"sort"
	"time"

	"agentmem/internal/apperr"
	"agentmem/internal/capability"
	"agentmem/internal/decay"
	"agentmem/internal/memconfig"
	"agentmem/internal/memdomain"
	"agentmem/internal/temporal"
)

const component = "recall"

// Query configures one recall call.
type Query struct {
	Text   string
	Type   *memdomain.Type
	Limit  int
	Preset memconfig.RecallWeights
}

// Scored is one fused recall result.
type Scored struct {
	Memory *memdomain.Memory
	Score  float64
}

// Service answers recall queries against a resolved capability set.
type Service struct {
	store    capability.StorageProvider
	caps     capability.Capabilities
	embedder capability.Embedder
	decayCfg decay.Config
	batch    *decay.BatchProcessor
}

func NewService(store capability.StorageProvider, caps capability.Capabilities, embedder capability.Embedder, decayCfg decay.Config, batch *decay.BatchProcessor) *Service {
	return &Service{store: store, caps: caps, embedder: embedder, decayCfg: decayCfg, batch: batch}
}

// Recall executes the five-step algorithm from spec §4.C12: embed (if
// available), provider-native hybrid/vector/text search, four-dimensional
// fusion, lazy decay application with a scheduled batch update, and
// stable-sorted truncation to q.Limit.
func (s *Service) Recall(ctx context.Context, userID, agentID string, q Query, now time.Time) ([]Scored, error) {
	if userID == "" || agentID == "" {
		return nil, apperr.Invalidf(component, "user_id and agent_id must not be empty")
	}
	if err := q.Preset.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.Invalid, component, "invalid recall weights", err)
	}

	var queryVector []float32
	if s.embedder != nil && q.Text != "" {
		res, err := s.embedder.Embed(ctx, q.Text)
		if err != nil {
			return nil, apperr.Wrap(apperr.Transient, component, "embed query", err)
		}
		queryVector = res.Vector
	}

	candidates, err := s.fetchCandidates(ctx, userID, agentID, q, queryVector)
	if err != nil {
		return nil, err
	}

	fused := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		score := fuse(c, q.Preset, now)
		fused = append(fused, Scored{Memory: c.Memory, Score: score})
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		if fused[i].Memory.Importance() != fused[j].Memory.Importance() {
			return fused[i].Memory.Importance() > fused[j].Memory.Importance()
		}
		if !fused[i].Memory.LastAccessedAt().Equal(fused[j].Memory.LastAccessedAt()) {
			return fused[i].Memory.LastAccessedAt().After(fused[j].Memory.LastAccessedAt())
		}
		return fused[i].Memory.ID().String() < fused[j].Memory.ID().String()
	})

	if q.Limit > 0 && len(fused) > q.Limit {
		fused = fused[:q.Limit]
	}

	s.applyDecayAndAccess(fused, now)
	return fused, nil
}

type candidate struct {
	Memory   *memdomain.Memory
	VecScore float64
	TextScore float64
}

func (s *Service) fetchCandidates(ctx context.Context, userID, agentID string, q Query, queryVector []float32) ([]candidate, error) {
	if s.caps.HybridSearch != nil {
		results, err := s.caps.HybridSearch.HybridSearch(ctx, userID, agentID, q.Text, queryVector, capability.HybridSearchParams{
			Limit: candidateLimit(q.Limit), VectorWeight: 0.70, TextWeight: 0.30, Filter: q.Type,
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.Transient, component, "hybrid search", err)
		}
		return toCandidates(results), nil
	}
	if s.caps.Vector != nil && queryVector != nil {
		results, err := s.caps.Vector.SearchByVector(ctx, userID, agentID, queryVector, candidateLimit(q.Limit), q.Type)
		if err != nil {
			return nil, apperr.Wrap(apperr.Transient, component, "vector search", err)
		}
		return toCandidates(results), nil
	}
	ms, err := s.store.Recall(ctx, userID, agentID, q.Text, capability.RecallOptions{Type: q.Type, Limit: candidateLimit(q.Limit)})
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, component, "text-only recall", err)
	}
	out := make([]candidate, len(ms))
	for i, m := range ms {
		out[i] = candidate{Memory: m, TextScore: 1.0}
	}
	return out, nil
}

func toCandidates(scored []capability.ScoredMemory) []candidate {
	out := make([]candidate, len(scored))
	for i, s := range scored {
		out[i] = candidate{Memory: s.Memory, VecScore: s.Score, TextScore: s.Score}
	}
	return out
}

func candidateLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit * 4 // over-fetch so fusion has a meaningful pool to rank
}

// fuse implements the four-dimensional weighted sum from spec §4.C12.
func fuse(c candidate, w memconfig.RecallWeights, now time.Time) float64 {
	sTemp := temporalScore(c.Memory, now)
	sProc := proceduralScore(c.Memory)
	return w.Vector*c.VecScore + w.Text*c.TextScore + w.Temporal*sTemp + w.Procedural*sProc
}

func temporalScore(m *memdomain.Memory, now time.Time) float64 {
	age := now.Sub(m.CreatedAt())
	score := recencyDecay(age)
	if v, ok := m.Metadata()[memdomain.MetaTemporalInsights]; ok {
		if ins, ok := v.(temporal.Insights); ok {
			score = (score + ins.RecencyScore) / 2
		}
	}
	return score
}

func recencyDecay(age time.Duration) float64 {
	days := age.Hours() / 24
	if days < 0 {
		days = 0
	}
	return 1.0 / (1.0 + days/30)
}

func proceduralScore(m *memdomain.Memory) float64 {
	if m.Type() != memdomain.Procedural {
		return 0
	}
	return m.Importance()
}

// applyDecayAndAccess computes lazy decay for each returned result,
// records access, and enqueues the coalesced updates with the batch
// processor rather than writing synchronously (spec §4.C12 step 4).
func (s *Service) applyDecayAndAccess(results []Scored, now time.Time) {
	if s.batch == nil {
		return
	}
	for _, r := range results {
		res := decay.Calculate(r.Memory, now, s.decayCfg)
		r.Memory.RecordAccess(now)
		res.AccessCount = r.Memory.AccessCount()
		// Enqueue's error return (apperr.Overflow on eviction) is accounted
		// for on the processor itself via its Evictions() counter rather
		// than logged per call here, so the S4 eviction signal survives
		// even though this call site doesn't have a logger of its own.
		_ = s.batch.Enqueue(res)
	}
}
