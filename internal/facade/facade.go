// Package facade implements the MemoryManager façade (spec §4.C13): the
// single entry point composing every other component (per-type policies,
// recall, decay, connections, consolidation, PRIME) behind one validated
// API. Grounded on the teacher's internal/service/memory "manager" layer,
// which plays the same composing-facade role over its own repository/
// service set, and on internal/di/container.go for the close/shutdown
// ordering (background workers first, then storage).
package facade

import (
	"context"
	"sort"
	"sync"
	"time"

	"agentmem/internal/apperr"
	"agentmem/internal/capability"
	"agentmem/internal/connection"
	"agentmem/internal/consolidation"
	"agentmem/internal/cost"
	"agentmem/internal/decay"
	"agentmem/internal/memconfig"
	"agentmem/internal/memdomain"
	"agentmem/internal/memtypes"
	"agentmem/internal/prime"
	"agentmem/internal/recall"
	"agentmem/internal/temporal"
	"agentmem/internal/txn"
)

const component = "facade"

// Stats is the per-type statistics payload get_stats returns, keyed by
// memdomain.Type.
type Stats map[memdomain.Type]capability.Stats

// Recommendation is one search_knowledge/get_recommendations hit.
type Recommendation struct {
	Memory *memdomain.Memory
	Score  float64
}

// MemoryManager is the façade every engine entrypoint (HTTP handler,
// Lambda handler, worker loop) is built against. It owns no I/O of its
// own beyond what the injected StorageProvider and optional Embedder/Chat
// provide.
type MemoryManager struct {
	store    capability.StorageProvider
	caps     capability.Capabilities
	embedder capability.Embedder
	chat     capability.Chat
	cfg      *memconfig.Config

	policies   *memtypes.Registry
	recall     *recall.Service
	decayCfg   decay.Config
	batch      *decay.BatchProcessor
	connMgr    *connection.Manager
	consolidator *consolidation.Consolidator
	temporalAn *temporal.Analyzer
	extractor  *prime.Extractor
	orchestrator *prime.Orchestrator
	tracker    *cost.Tracker

	backgroundCtx    context.Context
	cancelBackground context.CancelFunc
	waitBatchRunner  func()

	consolidateMu     sync.Mutex
	consolidateTimers map[string]*time.Timer
}

// New wires every component against the injected capabilities and
// configuration, resolves optional capability flags once (spec §9), and
// starts the background connection-discovery worker and decay-batch
// runner. Call Close to stop them.
func New(store capability.StorageProvider, embedder capability.Embedder, chat capability.Chat, cfg *memconfig.Config) *MemoryManager {
	caps := capability.Resolve(store)
	tracker := cost.New()

	decayCfg := decay.Config{
		MinUpdateInterval:     cfg.Decay.MinUpdateInterval,
		ReinforceWindow:       cfg.Decay.ReinforceWindow,
		SignificanceThreshold: cfg.Decay.SignificanceThreshold,
	}

	var batch *decay.BatchProcessor
	if caps.BatchUpdate != nil {
		batch = decay.NewBatchProcessor(caps.BatchUpdate, cfg.Decay.MaxPending, cfg.Decay.MaxBatchSize)
	}

	mgr := &MemoryManager{
		store:        store,
		caps:         caps,
		embedder:     embedder,
		chat:         chat,
		cfg:          cfg,
		policies:     memtypes.NewRegistry(store, cfg),
		recall:       recall.NewService(store, caps, embedder, decayCfg, batch),
		decayCfg:     decayCfg,
		batch:        batch,
		connMgr:      connection.NewManager(caps.Vector, caps.Connections, chat, cfg.ConnectionDetection, cfg.CostControl),
		consolidator: consolidation.New(store, cfg.Consolidation),
		temporalAn:   temporal.New(store),
		tracker:      tracker,
		consolidateTimers: make(map[string]*time.Timer),
	}
	mgr.extractor = prime.NewExtractor(chat, cfg.Prime, tracker)
	mgr.orchestrator = prime.NewOrchestrator(mgr.extractor, store, cfg.ConnectionDetection.BatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.backgroundCtx = ctx
	mgr.cancelBackground = cancel
	go mgr.connMgr.Run(ctx)
	if batch != nil && cfg.Decay.FlushInterval > 0 {
		mgr.waitBatchRunner = batch.Runner(ctx, cfg.Decay.FlushInterval)
	}
	return mgr
}

func validateIDs(userID, agentID string) error {
	if userID == "" || agentID == "" {
		return apperr.Invalidf(component, "user_id and agent_id must not be empty")
	}
	return nil
}

// Store validates and persists a new memory of the given type, enforces
// that type's bucket policy, embeds and stores the vector inline when a
// vector-capable provider and an embedder are present (enqueueing
// connection discovery on success), starts temporal analysis as
// best-effort background work, and returns the persisted memory.
func (f *MemoryManager) Store(ctx context.Context, userID, agentID string, typ memdomain.Type, p memdomain.NewMemoryParams, now time.Time) (*memdomain.Memory, error) {
	if err := validateIDs(userID, agentID); err != nil {
		return nil, err
	}
	uid, err := memdomain.NewUserID(userID)
	if err != nil {
		return nil, err
	}
	aid, err := memdomain.NewAgentID(agentID)
	if err != nil {
		return nil, err
	}
	policy, err := f.policies.For(typ)
	if err != nil {
		return nil, err
	}
	m, err := policy.StoreNew(ctx, uid, aid, p, now)
	if err != nil {
		return nil, err
	}

	scope := p.SessionID
	if typ != memdomain.Working {
		scope = "" // episodic/semantic/procedural limits aren't session-scoped
	}
	if err := policy.EnforceLimit(ctx, userID, agentID, scope, now); err != nil {
		return m, err // the memory is already stored; limit enforcement failures are reported but don't undo the write
	}

	if f.caps.Vector != nil && f.embedder != nil {
		res, err := f.embedder.Embed(ctx, m.Content())
		if err == nil {
			if err := f.caps.Vector.StoreMemoryWithEmbedding(ctx, userID, agentID, m, res.Vector); err == nil {
				m.SetEmbeddingID(m.ID().String(), now)
				_ = f.connMgr.Enqueue(userID, agentID, m)
			}
		}
	}
	go func() { _ = f.temporalAn.Analyze(f.backgroundCtx, userID, agentID, m, time.Now()) }()

	if typ == memdomain.Episodic {
		f.scheduleConsolidation(userID, agentID)
	}

	return m, nil
}

// scheduleConsolidation debounces a consolidation pass for (userID, agentID):
// each episodic write resets the pending timer rather than scheduling a new
// one, so a burst of writes triggers exactly one pass Consolidation.Debounce
// after the burst quiets down (§4.C9). A zero Debounce disables the trigger
// entirely (consolidation then only runs on explicit ConsolidateMemories
// calls). Close cancels every pending timer before returning.
func (f *MemoryManager) scheduleConsolidation(userID, agentID string) {
	if f.cfg.Consolidation.Debounce <= 0 {
		return
	}
	key := userID + ":" + agentID

	f.consolidateMu.Lock()
	defer f.consolidateMu.Unlock()
	if t, ok := f.consolidateTimers[key]; ok {
		t.Stop()
	}
	f.consolidateTimers[key] = time.AfterFunc(f.cfg.Consolidation.Debounce, func() {
		f.consolidateMu.Lock()
		delete(f.consolidateTimers, key)
		f.consolidateMu.Unlock()

		select {
		case <-f.backgroundCtx.Done():
			return
		default:
		}
		uid, err := memdomain.NewUserID(userID)
		if err != nil {
			return
		}
		aid, err := memdomain.NewAgentID(agentID)
		if err != nil {
			return
		}
		_, _ = f.consolidator.Run(f.backgroundCtx, uid, aid, time.Now())
	})
}

// StoreWithTransaction composes Store with any additional compensatable
// steps the caller supplies (e.g. updating an external index), rolling
// back the memory write if a later step fails.
func (f *MemoryManager) StoreWithTransaction(ctx context.Context, userID, agentID string, typ memdomain.Type, p memdomain.NewMemoryParams, now time.Time, extraSteps ...txn.Step) (*memdomain.Memory, error) {
	var stored *memdomain.Memory
	tx := txn.New().Add(txn.Step{
		Name: "store_memory",
		Do: func(ctx context.Context) error {
			m, err := f.Store(ctx, userID, agentID, typ, p, now)
			if err != nil {
				return err
			}
			stored = m
			return nil
		},
		Undo: func(ctx context.Context) error {
			if stored == nil {
				return nil
			}
			return f.store.DeleteMemory(ctx, userID, agentID, stored.ID().String())
		},
	})
	for _, step := range extraSteps {
		tx.Add(step)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return stored, nil
}

// DeleteMemory removes one memory by ID, passing straight through to the
// injected StorageProvider (the same call StoreWithTransaction's rollback
// step above already uses internally).
func (f *MemoryManager) DeleteMemory(ctx context.Context, userID, agentID, memoryID string) error {
	if err := validateIDs(userID, agentID); err != nil {
		return err
	}
	return f.store.DeleteMemory(ctx, userID, agentID, memoryID)
}

// Recall answers a hybrid recall query via the recall.Service.
func (f *MemoryManager) Recall(ctx context.Context, userID, agentID string, q recall.Query, now time.Time) ([]recall.Scored, error) {
	if err := validateIDs(userID, agentID); err != nil {
		return nil, err
	}
	return f.recall.Recall(ctx, userID, agentID, q, now)
}

// Decay forces an immediate decay recompute + flush for every memory of
// the given type, rather than waiting for the lazy recall-time path.
func (f *MemoryManager) Decay(ctx context.Context, userID, agentID string, typ memdomain.Type, now time.Time) (capability.BatchUpdateResult, error) {
	if err := validateIDs(userID, agentID); err != nil {
		return capability.BatchUpdateResult{}, err
	}
	ms, err := f.store.Recall(ctx, userID, agentID, "", capability.RecallOptions{Type: &typ})
	if err != nil {
		return capability.BatchUpdateResult{}, apperr.Wrap(apperr.Transient, component, "list memories for decay", err)
	}
	if f.batch == nil {
		return capability.BatchUpdateResult{}, apperr.NotSupportedf(component, "storage provider does not support batch_update_memories")
	}
	for _, r := range decay.CalculateBatch(ms, now, f.decayCfg) {
		_ = f.batch.Enqueue(r)
	}
	return f.batch.Flush(ctx)
}

// CreateConnection validates a user-asserted connection (type must be one
// of the recognized ConnectionType values) and persists it, per spec §9's
// requirement that the façade validate every connection it creates even
// though memdomain.NewConnection already rejects invalid types — this is
// the call site that guarantees that validation path is never bypassed by
// a façade caller constructing a MemoryConnection some other way.
func (f *MemoryManager) CreateConnection(ctx context.Context, sourceID, targetID memdomain.MemoryID, typ memdomain.ConnectionType, strength float64, reason string, now time.Time) (*memdomain.MemoryConnection, error) {
	if !typ.Valid() {
		return nil, apperr.Invalidf(component, "unknown connection type %q", typ)
	}
	if f.caps.Connections == nil {
		return nil, apperr.NotSupportedf(component, "storage provider does not support connections")
	}
	conn, err := memdomain.NewConnection(sourceID, targetID, typ, strength, reason, now)
	if err != nil {
		return nil, err
	}
	if err := f.caps.Connections.CreateConnections(ctx, []*memdomain.MemoryConnection{conn}); err != nil {
		return nil, apperr.Wrap(apperr.Transient, component, "persist connection", err)
	}
	return conn, nil
}

// GetStats returns per-type statistics for a user/agent scope.
func (f *MemoryManager) GetStats(ctx context.Context, userID, agentID string) (Stats, error) {
	if err := validateIDs(userID, agentID); err != nil {
		return nil, err
	}
	out := Stats{}
	for _, typ := range []memdomain.Type{memdomain.Working, memdomain.Episodic, memdomain.Semantic, memdomain.Procedural} {
		s, err := f.store.GetStats(ctx, userID, agentID, typ)
		if err != nil {
			return nil, apperr.Wrap(apperr.Transient, component, "get stats", err).WithMemoryID(string(typ))
		}
		out[typ] = s
	}
	return out, nil
}

// ClearWorkingMemory empties the working-memory bucket (session rollover).
func (f *MemoryManager) ClearWorkingMemory(ctx context.Context, userID, agentID string) error {
	if err := validateIDs(userID, agentID); err != nil {
		return err
	}
	policy, err := f.policies.For(memdomain.Working)
	if err != nil {
		return err
	}
	return policy.Clear(ctx, userID, agentID)
}

// Learn runs the PRIME extraction pipeline over a batch of conversational
// messages and stores every surviving candidate.
func (f *MemoryManager) Learn(ctx context.Context, userID, agentID string, messages []prime.Message, rules []prime.Rule, now time.Time) ([]*memdomain.Memory, prime.Metrics, error) {
	uid, err := memdomain.NewUserID(userID)
	if err != nil {
		return nil, prime.Metrics{}, err
	}
	aid, err := memdomain.NewAgentID(agentID)
	if err != nil {
		return nil, prime.Metrics{}, err
	}
	return f.orchestrator.ProcessMessages(ctx, uid, aid, messages, rules, now)
}

// GetRecommendations is get_recommendations: a recall call with the
// default preset scoped to a single type and re-expressed as
// Recommendation for callers that don't need the full Scored shape.
func (f *MemoryManager) GetRecommendations(ctx context.Context, userID, agentID string, typ memdomain.Type, limit int, now time.Time) ([]Recommendation, error) {
	results, err := f.Recall(ctx, userID, agentID, recall.Query{Type: &typ, Limit: limit, Preset: f.cfg.RecallPresets.Default}, now)
	if err != nil {
		return nil, err
	}
	out := make([]Recommendation, len(results))
	for i, r := range results {
		out[i] = Recommendation{Memory: r.Memory, Score: r.Score}
	}
	return out, nil
}

// SearchKnowledge recalls semantic memories matching a text query using
// the precision preset (favors text match over recency).
func (f *MemoryManager) SearchKnowledge(ctx context.Context, userID, agentID, query string, limit int, now time.Time) ([]recall.Scored, error) {
	semantic := memdomain.Semantic
	return f.Recall(ctx, userID, agentID, recall.Query{Text: query, Type: &semantic, Limit: limit, Preset: f.cfg.RecallPresets.Precision}, now)
}

// GetWorkingContext returns the current working-memory window for a
// session, most-recent-first, bounded by max_context_items.
func (f *MemoryManager) GetWorkingContext(ctx context.Context, userID, agentID, sessionID string, now time.Time) ([]*memdomain.Memory, error) {
	if err := validateIDs(userID, agentID); err != nil {
		return nil, err
	}
	working := memdomain.Working
	ms, err := f.store.Recall(ctx, userID, agentID, "", capability.RecallOptions{Type: &working})
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, component, "list working memories", err)
	}
	out := make([]*memdomain.Memory, 0, len(ms))
	for _, m := range ms {
		if m.SessionID().String() == sessionID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt().After(out[j].CreatedAt()) })
	if limit := f.cfg.Working.MaxContextItems; limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ConsolidateMemories runs one consolidation pass (spec §4.C9).
func (f *MemoryManager) ConsolidateMemories(ctx context.Context, userID, agentID string, now time.Time) (consolidation.Result, error) {
	if err := validateIDs(userID, agentID); err != nil {
		return consolidation.Result{}, err
	}
	uid, err := memdomain.NewUserID(userID)
	if err != nil {
		return consolidation.Result{}, err
	}
	aid, err := memdomain.NewAgentID(agentID)
	if err != nil {
		return consolidation.Result{}, err
	}
	return f.consolidator.Run(ctx, uid, aid, now)
}

// FlushLazyDecayUpdates forces an immediate flush of the coalesced decay
// batch, for callers (tests, graceful shutdown) that need the store to
// reflect every computed decay before proceeding.
func (f *MemoryManager) FlushLazyDecayUpdates(ctx context.Context) (capability.BatchUpdateResult, error) {
	if f.batch == nil {
		return capability.BatchUpdateResult{}, nil
	}
	return f.batch.Flush(ctx)
}

// Close stops background workers (connection discovery, decay batch
// runner) and releases provider resources, in that order so no in-flight
// background task is writing to a provider that's already being torn
// down — mirroring the teacher's DI container shutdown ordering.
func (f *MemoryManager) Close(ctx context.Context) error {
	if f.cancelBackground != nil {
		f.cancelBackground()
	}
	f.consolidateMu.Lock()
	for key, t := range f.consolidateTimers {
		t.Stop()
		delete(f.consolidateTimers, key)
	}
	f.consolidateMu.Unlock()
	if f.waitBatchRunner != nil {
		f.waitBatchRunner()
	}
	if f.batch != nil {
		if _, err := f.batch.Flush(ctx); err != nil {
			return apperr.Wrap(apperr.Transient, component, "final decay flush on close", err)
		}
	}
	if f.caps.Destroy != nil {
		if err := f.caps.Destroy.Destroy(ctx); err != nil {
			return apperr.Wrap(apperr.Transient, component, "destroy storage provider", err)
		}
	}
	return nil
}
