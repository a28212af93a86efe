package connection

import (
	"context"
	"time"

	"agentmem/internal/apperr"
	"agentmem/internal/capability"
	"agentmem/internal/cost"
	"agentmem/internal/memconfig"
	"agentmem/internal/memdomain"
)

// Manager discovers and persists connections for newly stored memories. It
// is the queue consumer referenced by spec §4.C7's async discovery step;
// Enqueue/Run model the bounded work queue, Discover (triage.go) does the
// actual classification.
type Manager struct {
	vector      capability.VectorOps
	connections capability.ConnectionOps
	chat        capability.Chat
	cfg         memconfig.ConnectionDetectionConfig
	costControl memconfig.CostControlConfig

	queue chan queued
}

type queued struct {
	userID, agentID string
	memory          *memdomain.Memory
}

func NewManager(vector capability.VectorOps, connections capability.ConnectionOps, chat capability.Chat, cfg memconfig.ConnectionDetectionConfig, costControl memconfig.CostControlConfig) *Manager {
	qsize := cfg.MaxQueue
	if qsize <= 0 {
		qsize = 1000
	}
	return &Manager{
		vector:      vector,
		connections: connections,
		chat:        chat,
		cfg:         cfg,
		costControl: costControl,
		queue:       make(chan queued, qsize),
	}
}

// Enqueue schedules connection discovery for a stored memory. It never
// blocks the caller's write path beyond a full-queue check: a full queue
// returns apperr.Overflow rather than blocking, since discovery is
// best-effort background enrichment, not a requirement of the write.
func (m *Manager) Enqueue(userID, agentID string, memory *memdomain.Memory) error {
	if !m.cfg.Enabled {
		return nil
	}
	select {
	case m.queue <- queued{userID: userID, agentID: agentID, memory: memory}:
		return nil
	default:
		return apperr.New(apperr.Overflow, component, "connection discovery queue full").WithMemoryID(memory.ID().String())
	}
}

// Run drains the queue until ctx is cancelled, processing one item at a
// time up to MaxConcurrentDiscoveries in flight (a simple semaphore,
// mirroring the teacher's worker-pool pattern for background enrichment
// tasks).
func (m *Manager) Run(ctx context.Context) {
	limit := m.cfg.MaxConcurrentDiscoveries
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-m.queue:
			sem <- struct{}{}
			go func(it queued) {
				defer func() { <-sem }()
				taskCtx, cancel := context.WithTimeout(ctx, m.timeout())
				defer cancel()
				_ = m.process(taskCtx, it)
			}(item)
		}
	}
}

func (m *Manager) timeout() time.Duration {
	if m.cfg.TaskTimeout <= 0 {
		return 30 * time.Second
	}
	return m.cfg.TaskTimeout
}

func (m *Manager) process(ctx context.Context, it queued) error {
	if m.vector == nil {
		return apperr.NotSupportedf(component, "storage provider does not support vector search; connection discovery disabled")
	}
	if it.memory.EmbeddingID() == "" {
		return nil // no embedding yet, nothing to compare against
	}
	candidates, err := m.vector.FindSimilarMemories(ctx, it.userID, it.memory.ID().String(), m.cfg.MaxCandidates, m.cfg.Thresholds.LLMRequired)
	if err != nil {
		return apperr.Wrap(apperr.Transient, component, "find similar memories", err)
	}
	tracker := cost.New()
	conns, err := Discover(ctx, it.memory, candidates, m.cfg, m.costControl.MaxLLMCallsPerBatch, m.chat, tracker, time.Now())
	if err != nil {
		return err
	}
	if len(conns) == 0 || m.connections == nil {
		return nil
	}
	if err := m.connections.CreateConnections(ctx, conns); err != nil {
		return apperr.Wrap(apperr.Transient, component, "persist connections", err)
	}
	return nil
}
