// Package consolidation implements the episodic-to-semantic conversion and
// similarity-based merge pass (spec §4.C9). Grounded on the teacher's
// domain/services/similarity_calculator.go for the Jaccard/cosine merge
// math, and on its category-consolidation batch-job shape
// (internal/service/category) for the debounced, age-gated batch trigger.
package consolidation

import (
	"context"
	"sort"
	"time"

	"agentmem/internal/apperr"
	"agentmem/internal/capability"
	"agentmem/internal/memconfig"
	"agentmem/internal/memdomain"
)

const component = "consolidation"

// Consolidator promotes sufficiently important, sufficiently old episodic
// memories into semantic memories, merging near-duplicates along the way.
type Consolidator struct {
	store capability.StorageProvider
	cfg   memconfig.ConsolidationConfig
}

func New(store capability.StorageProvider, cfg memconfig.ConsolidationConfig) *Consolidator {
	return &Consolidator{store: store, cfg: cfg}
}

// Result summarizes one consolidation pass for observability/testing.
type Result struct {
	Considered int
	Promoted   int
	Merged     int
	Archived   int
}

// Run executes one consolidation pass for a user/agent scope: it selects
// episodic memories older than EpisodicMaxAge and at/above
// EpisodicImportanceFloor, merges near-duplicates (keyword Jaccard at or
// above SimilarityThreshold) into a single semantic memory, and promotes
// survivors to Semantic, archiving (or deleting, per PreserveOriginals) the
// source episodic rows.
func (c *Consolidator) Run(ctx context.Context, userID memdomain.UserID, agentID memdomain.AgentID, now time.Time) (Result, error) {
	var res Result
	typ := memdomain.Episodic
	candidates, err := c.store.Recall(ctx, userID.String(), agentID.String(), "", capability.RecallOptions{Type: &typ})
	if err != nil {
		return res, apperr.Wrap(apperr.Transient, component, "list episodic memories", err)
	}

	eligible := make([]*memdomain.Memory, 0, len(candidates))
	for _, m := range candidates {
		if m.Status() != memdomain.Active {
			continue
		}
		if now.Sub(m.CreatedAt()) < c.cfg.EpisodicMaxAge {
			continue
		}
		if m.Importance() < c.cfg.EpisodicImportanceFloor {
			continue
		}
		eligible = append(eligible, m)
	}
	res.Considered = len(eligible)
	if len(eligible) == 0 {
		return res, nil
	}

	groups := groupBySimilarity(eligible, c.cfg.SimilarityThreshold)
	for _, group := range groups {
		semantic, err := c.promote(ctx, userID, agentID, group, now)
		if err != nil {
			return res, err
		}
		if err := c.store.Store(ctx, userID.String(), agentID.String(), semantic); err != nil {
			return res, apperr.Wrap(apperr.Transient, component, "store consolidated semantic memory", err)
		}
		res.Promoted++
		if len(group) > 1 {
			res.Merged += len(group) - 1
		}
		for _, m := range group {
			if c.cfg.PreserveOriginals {
				if err := m.Archive(now); err != nil {
					continue
				}
				if err := c.store.Update(ctx, m); err != nil {
					return res, apperr.Wrap(apperr.Transient, component, "archive consolidated episodic memory", err).WithMemoryID(m.ID().String())
				}
				res.Archived++
			} else {
				if err := c.store.DeleteMemory(ctx, userID.String(), agentID.String(), m.ID().String()); err != nil {
					return res, apperr.Wrap(apperr.Transient, component, "delete consolidated episodic memory", err).WithMemoryID(m.ID().String())
				}
			}
		}
	}
	return res, nil
}

// promote builds one semantic memory from a group of near-duplicate
// episodic memories: content is the highest-importance member's content,
// keywords are the union, importance is the group max, and merged_from
// records provenance in metadata (§3 MetaMergedFrom).
func (c *Consolidator) promote(ctx context.Context, userID memdomain.UserID, agentID memdomain.AgentID, group []*memdomain.Memory, now time.Time) (*memdomain.Memory, error) {
	best := group[0]
	for _, m := range group[1:] {
		if m.Importance() > best.Importance() {
			best = m
		}
	}
	keywords := unionKeywords(group)
	mergedFrom := make([]string, 0, len(group))
	for _, m := range group {
		mergedFrom = append(mergedFrom, m.ID().String())
	}

	sem, err := memdomain.NewMemory(userID, agentID, memdomain.Semantic, memdomain.NewMemoryParams{
		Content:    best.Content(),
		Keywords:   keywords,
		Importance: best.Importance(),
		Metadata:   map[string]any{memdomain.MetaMergedFrom: mergedFrom},
		CreatedAt:  now,
	}, now)
	if err != nil {
		return nil, err
	}
	return sem, nil
}

func unionKeywords(group []*memdomain.Memory) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range group {
		for _, k := range m.Keywords() {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	return out
}

// groupBySimilarity clusters memories whose keyword-Jaccard similarity is
// at/above threshold using single-linkage grouping, the same similarity
// definition the connection package's rule-matching tier uses, kept
// independent here so each package stays free of a shared mutable
// similarity-calculator dependency.
func groupBySimilarity(ms []*memdomain.Memory, threshold float64) [][]*memdomain.Memory {
	n := len(ms)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if jaccard(ms[i].Keywords(), ms[j].Keywords()) >= threshold {
				union(i, j)
			}
		}
	}
	groups := map[int][]*memdomain.Memory{}
	for i, m := range ms {
		root := find(i)
		groups[root] = append(groups[root], m)
	}
	out := make([][]*memdomain.Memory, 0, len(groups))
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].CreatedAt().Before(g[j].CreatedAt()) })
		out = append(out, g)
	}
	return out
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, k := range a {
		set[k] = struct{}{}
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, k := range a {
		seen[k] = struct{}{}
	}
	var intersect int
	for _, k := range b {
		if _, ok := set[k]; ok {
			intersect++
		}
		seen[k] = struct{}{}
	}
	if len(seen) == 0 {
		return 0
	}
	return float64(intersect) / float64(len(seen))
}
