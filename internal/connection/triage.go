// Package connection implements automatic connection discovery (spec
// §4.C7): a tiered "smart triage" that prefers cheap embedding-similarity
// bands and keyword-overlap rules, escalating to an LLM classification
// call only for the ambiguous middle band and only while the batch cost
// budget allows it. Grounded on the teacher's
// domain/services/similarity_calculator.go (Jaccard/cosine math reused
// here for the rule-matching tier) and internal/service/llm/service.go
// (the structured-classification call shape).
package connection

import (
	"context"
	"time"

	"agentmem/internal/capability"
	"agentmem/internal/cost"
	"agentmem/internal/memconfig"
	"agentmem/internal/memdomain"
)

const component = "connection"

// classification is the schema-validated shape an LLM classification call
// returns (spec §4.C7 step 3).
type classification struct {
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
	Reason   string  `json:"reason"`
}

var classifySchema = capability.Schema{
	"type": "object",
	"properties": map[string]any{
		"type":     map[string]any{"type": "string", "enum": []string{"similar", "related", "causes", "part_of", "opposite"}},
		"strength": map[string]any{"type": "number"},
		"reason":   map[string]any{"type": "string"},
	},
	"required": []string{"type", "strength"},
}

// Discover evaluates triage for one source memory against a candidate set
// already filtered to the llm_required similarity floor, returning the
// connections it determined (source -> candidate). chat may be nil, in
// which case the ambiguous band falls back to rule matching only, never
// escalating.
func Discover(ctx context.Context, source *memdomain.Memory, candidates []capability.ScoredMemory, cfg memconfig.ConnectionDetectionConfig, maxLLMCallsPerBatch int, chat capability.Chat, tracker *cost.Tracker, now time.Time) ([]*memdomain.MemoryConnection, error) {
	th := cfg.Thresholds
	var out []*memdomain.MemoryConnection

	if cfg.MaxCandidates > 0 && len(candidates) > cfg.MaxCandidates {
		candidates = candidates[:cfg.MaxCandidates]
	}

	for _, cand := range candidates {
		if cand.Memory.ID().Equals(source.ID()) {
			continue
		}
		switch {
		case cand.Score >= th.AutoSimilar:
			conn, err := memdomain.NewConnection(source.ID(), cand.Memory.ID(), memdomain.Similar, cand.Score, "embedding similarity above auto-similar threshold", now)
			if err != nil {
				return nil, err
			}
			out = append(out, conn.WithTriage(memdomain.TriageAutoSimilar, cand.Score, false, 0))

		case cand.Score >= th.AutoRelated:
			conn, err := memdomain.NewConnection(source.ID(), cand.Memory.ID(), memdomain.Related, cand.Score, "embedding similarity above auto-related threshold", now)
			if err != nil {
				return nil, err
			}
			out = append(out, conn.WithTriage(memdomain.TriageAutoRelated, cand.Score, false, 0))

		case cand.Score >= th.LLMRequired:
			// Ambiguous middle band: try cheap keyword-overlap rule
			// matching first, per cost-control preference, and only
			// escalate to the LLM when rules don't resolve it and the
			// per-batch call budget still allows a call.
			if ct, strength, ok := ruleMatch(source, cand.Memory); ok {
				conn, err := memdomain.NewConnection(source.ID(), cand.Memory.ID(), ct, strength, "keyword overlap rule match", now)
				if err != nil {
					return nil, err
				}
				out = append(out, conn.WithTriage(memdomain.TriageAutoRelated, cand.Score, false, 0))
				continue
			}
			if chat == nil || tracker.BudgetExceeded(maxLLMCallsPerBatch) {
				continue
			}
			conn, err := classify(ctx, chat, cfg, source, cand, tracker, now)
			if err != nil {
				return nil, err
			}
			if conn != nil {
				out = append(out, conn)
			}
		}
	}
	return out, nil
}

func classify(ctx context.Context, chat capability.Chat, cfg memconfig.ConnectionDetectionConfig, source *memdomain.Memory, cand capability.ScoredMemory, tracker *cost.Tracker, now time.Time) (*memdomain.MemoryConnection, error) {
	messages := []capability.ChatMessage{
		{Role: capability.RoleSystem, Content: "Classify the relationship between two memories. Respond with type, strength (0-1), and a short reason."},
		{Role: capability.RoleUser, Content: "Memory A: " + source.Content() + "\nMemory B: " + cand.Memory.Content()},
	}
	result, usage, err := capability.GenerateObject[classification](ctx, chat, classifySchema, messages, capability.GenerateOptions{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	tracker.RecordCall(usage.TotalTokens, 0)

	ct := memdomain.ConnectionType(result.Type)
	if !ct.Valid() {
		return nil, nil
	}
	conn, err := memdomain.NewConnection(source.ID(), cand.Memory.ID(), ct, result.Strength, result.Reason, now)
	if err != nil {
		return nil, err
	}
	return conn.WithTriage(memdomain.TriageLLMClassified, cand.Score, true, 0), nil
}

// ruleMatch applies cheap deterministic heuristics before reaching for the
// LLM: a high keyword-Jaccard overlap with an explicit negation keyword on
// one side classifies as Opposite; a high overlap with a containment-style
// keyword overlap classifies as PartOf; otherwise it declines (ok=false)
// and lets the caller escalate.
func ruleMatch(a, b *memdomain.Memory) (memdomain.ConnectionType, float64, bool) {
	j := jaccard(a.Keywords(), b.Keywords())
	if j == 0 {
		return "", 0, false
	}
	if j >= 0.8 && hasAny(b.Keywords(), "not", "opposite", "never") {
		return memdomain.Opposite, j, true
	}
	if j >= 0.6 && hasAny(b.Keywords(), "part", "subset", "component") {
		return memdomain.PartOf, j, true
	}
	return "", 0, false
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, k := range a {
		set[k] = struct{}{}
	}
	var intersect, unionCount int
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, k := range a {
		seen[k] = struct{}{}
	}
	for _, k := range b {
		if _, ok := set[k]; ok {
			intersect++
		}
		seen[k] = struct{}{}
	}
	unionCount = len(seen)
	if unionCount == 0 {
		return 0
	}
	return float64(intersect) / float64(unionCount)
}

func hasAny(keywords []string, targets ...string) bool {
	for _, k := range keywords {
		for _, t := range targets {
			if k == t {
				return true
			}
		}
	}
	return false
}
