package prime

import (
	"context"
	"time"

	"agentmem/internal/apperr"
	"agentmem/internal/capability"
	"agentmem/internal/memdomain"
)

// Metrics accumulates per-batch orchestration outcomes (spec §4.C11).
type Metrics struct {
	Processed int
	Extracted int
	Failed    int
	TokensUsed int
}

// Orchestrator batches messages through an Extractor and stores the
// results via the provider's memory ops, continuing past individual
// message failures. Grounded on the teacher's batch-job shape in
// internal/service/category (split into fixed-size batches, accumulate
// metrics, never abort on one item's failure).
type Orchestrator struct {
	extractor *Extractor
	store     capability.MemoryOps
	batchSize int
}

func NewOrchestrator(extractor *Extractor, store capability.MemoryOps, batchSize int) *Orchestrator {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Orchestrator{extractor: extractor, store: store, batchSize: batchSize}
}

// ProcessMessages runs extraction + storage for every message in order,
// preserving input order in the output memory slice (spec §5 ordering
// guarantee), and attaches the earliest message timestamp to each stored
// memory's original_conversation_date metadata.
func (o *Orchestrator) ProcessMessages(ctx context.Context, userID memdomain.UserID, agentID memdomain.AgentID, messages []Message, rules []Rule, now time.Time) ([]*memdomain.Memory, Metrics, error) {
	if userID.IsEmpty() || agentID.IsEmpty() {
		return nil, Metrics{}, apperr.Invalidf(component, "user_id and agent_id must not be empty")
	}
	if len(messages) == 0 {
		return nil, Metrics{}, nil
	}

	conversationDate := messages[0].Timestamp
	for _, m := range messages {
		if m.Timestamp.Before(conversationDate) {
			conversationDate = m.Timestamp
		}
	}

	var out []*memdomain.Memory
	var metrics Metrics

	for start := 0; start < len(messages); start += o.batchSize {
		end := start + o.batchSize
		if end > len(messages) {
			end = len(messages)
		}
		for _, msg := range messages[start:end] {
			metrics.Processed++
			result, err := o.extractor.Extract(ctx, userID, agentID, msg, rules, nil, now)
			if err != nil {
				metrics.Failed++
				continue
			}
			metrics.TokensUsed += result.TokensUsed
			for _, cand := range result.Candidates {
				cand.SetMetadata(memdomain.MetaOriginalConversationDate, conversationDate, now)
				if err := o.store.Store(ctx, userID.String(), agentID.String(), cand); err != nil {
					metrics.Failed++
					continue
				}
				metrics.Extracted++
				out = append(out, cand)
			}
		}
	}
	return out, metrics, nil
}
