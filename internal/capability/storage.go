// Package capability defines the three external collaborators the memory
// engine consumes — StorageProvider, Embedder and Chat — as explicit Go
// interfaces composed of smaller capability interfaces. This replaces the
// source system's runtime duck-typing (detecting method presence on a
// provider value) with compile-time interface composition plus explicit
// capability flags resolved once at façade construction time, per spec §9
// REDESIGN FLAGS. The composition style (small single-purpose interfaces
// assembled by the DI container) is grounded on the teacher's
// internal/repository/focused_interfaces.go.
package capability

import (
	"context"
	"time"

	"agentmem/internal/memdomain"
)

// KVStore is the minimum key/value capability every StorageProvider must
// offer (spec §6).
type KVStore interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, namespace, key string) error
	Exists(ctx context.Context, namespace, key string) (bool, error)
	List(ctx context.Context, namespace, prefix string) ([]string, error)
	Clear(ctx context.Context, namespace string) error
	GetMany(ctx context.Context, namespace string, keys []string) (map[string][]byte, error)
	SetMany(ctx context.Context, namespace string, values map[string][]byte, ttl time.Duration) error
	DeleteMany(ctx context.Context, namespace string, keys []string) error
}

// RecallOptions narrows a memory recall query.
type RecallOptions struct {
	Type  *memdomain.Type
	Limit int
}

// MemoryUpdate is a coalesced write produced by the lazy decay pipeline
// (§4.C5).
type MemoryUpdate struct {
	MemoryID       string
	Resonance      float64
	LastAccessedAt time.Time
	AccessCount    int64
}

// BatchUpdateResult reports per-chunk outcomes so a partial failure of one
// chunk never blocks the rest (§4.C5 flush_now, §7 error propagation).
type BatchUpdateResult struct {
	Succeeded int
	Failed    int
	Errors    []error
}

// HybridSearchParams configures a provider-native hybrid search call
// (§4.C12 step 2).
type HybridSearchParams struct {
	Limit        int
	VectorWeight float64
	TextWeight   float64
	Threshold    float64
	Filter       *memdomain.Type
}

// MemoryOps is the required memory-record capability of a StorageProvider.
type MemoryOps interface {
	Store(ctx context.Context, userID, agentID string, m *memdomain.Memory) error
	Recall(ctx context.Context, userID, agentID, query string, opts RecallOptions) ([]*memdomain.Memory, error)
	Update(ctx context.Context, m *memdomain.Memory) error
	DeleteMemory(ctx context.Context, userID, agentID, memoryID string) error
	GetStats(ctx context.Context, userID, agentID string, typ memdomain.Type) (Stats, error)
}

// Stats is the per-type statistics payload (§4.C6).
type Stats struct {
	Count           int
	TotalTokens     int
	ExpiredCount    int
	OldestCreatedAt time.Time
	NewestCreatedAt time.Time
}

// GetByIDOps is optional: providers that can look up a memory directly by
// id advertise it.
type GetByIDOps interface {
	GetByID(ctx context.Context, userID, agentID, memoryID string) (*memdomain.Memory, bool, error)
}

// BatchUpdateOps is optional: required for the lazy decay batch processor
// to flush coalesced writes (§4.C5). For a provider lacking this, the
// façade runs without a batch processor: Decay reports NotSupported and
// recall does not persist decay results.
type BatchUpdateOps interface {
	BatchUpdateMemories(ctx context.Context, updates []MemoryUpdate) (BatchUpdateResult, error)
}

// DecayOps is optional: a provider may offer a native bulk decay-apply
// path. Resolve records it, but the engine never calls ApplyDecay; decay
// writes always go through BatchUpdateOps.
type DecayOps interface {
	ApplyDecay(ctx context.Context, userID, agentID string, now time.Time) (int, error)
}

// ConnectionOps is optional: persistence for MemoryConnection rows (§4.C7).
type ConnectionOps interface {
	CreateConnections(ctx context.Context, conns []*memdomain.MemoryConnection) error
	FindConnectedMemories(ctx context.Context, userID, memoryID string, depth int) ([]*memdomain.MemoryConnection, error)
}

// VectorOps is optional: embedding-backed similarity search (§4.C2/C7/C12).
type VectorOps interface {
	StoreMemoryWithEmbedding(ctx context.Context, userID, agentID string, m *memdomain.Memory, vector []float32) error
	SearchByVector(ctx context.Context, userID, agentID string, vector []float32, limit int, filter *memdomain.Type) ([]ScoredMemory, error)
	FindSimilarMemories(ctx context.Context, userID, memoryID string, topK int, threshold float64) ([]ScoredMemory, error)
	UpdateMemoryEmbedding(ctx context.Context, userID, agentID, memoryID string, vector []float32) error
	GetMemoryEmbedding(ctx context.Context, userID, agentID, memoryID string) ([]float32, bool, error)
}

// ScoredMemory pairs a memory with a similarity/relevance score.
type ScoredMemory struct {
	Memory *memdomain.Memory
	Score  float64
}

// HybridSearchOps is optional: a provider-native fused vector+text search
// (§4.C12 step 2). Absent providers fall back to vector-only/text-only.
type HybridSearchOps interface {
	HybridSearch(ctx context.Context, userID, agentID, queryText string, queryVector []float32, params HybridSearchParams) ([]ScoredMemory, error)
}

// EvolutionOps is optional: lifecycle telemetry sink (§3 MemoryEvent).
type EvolutionOps interface {
	TrackEvent(ctx context.Context, ev memdomain.Event) error
	TrackEventBatch(ctx context.Context, evs []memdomain.Event) error
	GetEvolutionHistory(ctx context.Context, userID, memoryID string) ([]memdomain.Event, error)
}

// Destroyable is optional: providers with background resources to release.
type Destroyable interface {
	Destroy(ctx context.Context) error
}

// StorageProvider is the full capability surface a concrete adapter may
// offer. Only MemoryOps and KVStore are mandatory; the rest are detected
// once via type assertion at DI-construction time (not on every call) and
// recorded as explicit capability flags, per spec §9.
type StorageProvider interface {
	KVStore
	MemoryOps
}

// Capabilities is the explicit, resolved-once flag set the façade (C13)
// builds when it receives a StorageProvider. It replaces the source
// system's runtime duck-typing.
type Capabilities struct {
	GetByID        GetByIDOps
	BatchUpdate    BatchUpdateOps
	Decay          DecayOps
	Connections    ConnectionOps
	Vector         VectorOps
	HybridSearch   HybridSearchOps
	Evolution      EvolutionOps
	Destroy        Destroyable
}

// Resolve inspects a provider once and returns its optional capability
// flags, mirroring the teacher DI container's practice of resolving
// decorated repositories once at wiring time rather than per-call.
func Resolve(p StorageProvider) Capabilities {
	var c Capabilities
	c.GetByID, _ = p.(GetByIDOps)
	c.BatchUpdate, _ = p.(BatchUpdateOps)
	c.Decay, _ = p.(DecayOps)
	c.Connections, _ = p.(ConnectionOps)
	c.Vector, _ = p.(VectorOps)
	c.HybridSearch, _ = p.(HybridSearchOps)
	c.Evolution, _ = p.(EvolutionOps)
	c.Destroy, _ = p.(Destroyable)
	return c
}
