// Package memstore is an in-process, mutex-guarded implementation of
// capability.StorageProvider used by local development and by every other
// package's tests in place of a real database. Grounded on the teacher's
// internal/repository in-memory test double (the repository package keeps
// a map-backed fake beside its DynamoDB implementation) and on
// infrastructure/dynamodb's method set, which this adapter mirrors so
// swapping it for a real backend requires no caller changes.
package memstore

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"agentmem/internal/apperr"
	"agentmem/internal/capability"
	"agentmem/internal/memdomain"
)

const component = "memstore"

type record struct {
	memory *memdomain.Memory
	vector []float32
}

// Store is safe for concurrent use. It implements every optional
// capability.StorageProvider interface so it can stand in for any real
// adapter in tests.
type Store struct {
	mu          sync.RWMutex
	kv          map[string][]byte
	memories    map[string]map[string]*record // scope key ("user/agent") -> memoryID -> record
	connections map[string][]*memdomain.MemoryConnection
	events      map[string][]memdomain.Event
}

func New() *Store {
	return &Store{
		kv:          make(map[string][]byte),
		memories:    make(map[string]map[string]*record),
		connections: make(map[string][]*memdomain.MemoryConnection),
		events:      make(map[string][]memdomain.Event),
	}
}

func scopeKey(userID, agentID string) string { return userID + "/" + agentID }
func kvKey(namespace, key string) string      { return namespace + "\x00" + key }

// KVStore

func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.kv[kvKey(namespace, key)]
	return v, ok, nil
}

func (s *Store) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[kvKey(namespace, key)] = value
	return nil
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, kvKey(namespace, key))
	return nil
}

func (s *Store) Exists(ctx context.Context, namespace, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.kv[kvKey(namespace, key)]
	return ok, nil
}

func (s *Store) List(ctx context.Context, namespace, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	want := namespace + "\x00" + prefix
	for k := range s.kv {
		if len(k) >= len(want) && k[:len(want)] == want {
			out = append(out, k[len(namespace)+1:])
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Clear(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := namespace + "\x00"
	for k := range s.kv {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(s.kv, k)
		}
	}
	return nil
}

func (s *Store) GetMany(ctx context.Context, namespace string, keys []string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := s.kv[kvKey(namespace, k)]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s *Store) SetMany(ctx context.Context, namespace string, values map[string][]byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.kv[kvKey(namespace, k)] = v
	}
	return nil
}

func (s *Store) DeleteMany(ctx context.Context, namespace string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.kv, kvKey(namespace, k))
	}
	return nil
}

// MemoryOps

func (s *Store) Store(ctx context.Context, userID, agentID string, m *memdomain.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scopeKey(userID, agentID)
	if s.memories[key] == nil {
		s.memories[key] = make(map[string]*record)
	}
	s.memories[key][m.ID().String()] = &record{memory: m}
	return nil
}

func (s *Store) Recall(ctx context.Context, userID, agentID, query string, opts capability.RecallOptions) ([]*memdomain.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope := s.memories[scopeKey(userID, agentID)]
	out := make([]*memdomain.Memory, 0, len(scope))
	for _, r := range scope {
		if opts.Type != nil && r.memory.Type() != *opts.Type {
			continue
		}
		if query != "" && !containsFold(r.memory.Content(), query) {
			continue
		}
		out = append(out, r.memory)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func containsFold(haystack, needle string) bool {
	hl, nl := len(haystack), len(needle)
	if nl == 0 {
		return true
	}
	for i := 0; i+nl <= hl; i++ {
		if equalFold(haystack[i:i+nl], needle) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func (s *Store) Update(ctx context.Context, m *memdomain.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scopeKey(m.UserID().String(), m.AgentID().String())
	scope := s.memories[key]
	if scope == nil || scope[m.ID().String()] == nil {
		return apperr.New(apperr.Invalid, component, "memory not found for update").WithMemoryID(m.ID().String())
	}
	scope[m.ID().String()].memory = m
	return nil
}

func (s *Store) DeleteMemory(ctx context.Context, userID, agentID, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope := s.memories[scopeKey(userID, agentID)]
	if scope != nil {
		delete(scope, memoryID)
	}
	return nil
}

func (s *Store) GetStats(ctx context.Context, userID, agentID string, typ memdomain.Type) (capability.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope := s.memories[scopeKey(userID, agentID)]
	var st capability.Stats
	for _, r := range scope {
		if r.memory.Type() != typ {
			continue
		}
		st.Count++
		st.TotalTokens += r.memory.TokenCount()
		if st.OldestCreatedAt.IsZero() || r.memory.CreatedAt().Before(st.OldestCreatedAt) {
			st.OldestCreatedAt = r.memory.CreatedAt()
		}
		if r.memory.CreatedAt().After(st.NewestCreatedAt) {
			st.NewestCreatedAt = r.memory.CreatedAt()
		}
	}
	return st, nil
}

// Optional capabilities

func (s *Store) GetByID(ctx context.Context, userID, agentID, memoryID string) (*memdomain.Memory, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope := s.memories[scopeKey(userID, agentID)]
	if scope == nil {
		return nil, false, nil
	}
	r, ok := scope[memoryID]
	if !ok {
		return nil, false, nil
	}
	return r.memory, true, nil
}

func (s *Store) BatchUpdateMemories(ctx context.Context, updates []capability.MemoryUpdate) (capability.BatchUpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res capability.BatchUpdateResult
	for _, u := range updates {
		found := false
		for _, scope := range s.memories {
			if r, ok := scope[u.MemoryID]; ok {
				_ = r.memory.ApplyDecayResult(u.Resonance, u.LastAccessedAt, false, u.LastAccessedAt)
				res.Succeeded++
				found = true
				break
			}
		}
		if !found {
			res.Failed++
			res.Errors = append(res.Errors, apperr.New(apperr.Invalid, component, "unknown memory in batch update").WithMemoryID(u.MemoryID))
		}
	}
	return res, nil
}

func (s *Store) CreateConnections(ctx context.Context, conns []*memdomain.MemoryConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
next:
	for _, c := range conns {
		key := c.SourceID().String()
		for _, existing := range s.connections[key] {
			if existing.Key() == c.Key() {
				continue next // uniqueness invariant: skip duplicate (source,target,type)
			}
		}
		s.connections[key] = append(s.connections[key], c)
	}
	return nil
}

func (s *Store) FindConnectedMemories(ctx context.Context, userID, memoryID string, depth int) ([]*memdomain.MemoryConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*memdomain.MemoryConnection(nil), s.connections[memoryID]...), nil
}

func (s *Store) StoreMemoryWithEmbedding(ctx context.Context, userID, agentID string, m *memdomain.Memory, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scopeKey(userID, agentID)
	if s.memories[key] == nil {
		s.memories[key] = make(map[string]*record)
	}
	s.memories[key][m.ID().String()] = &record{memory: m, vector: vector}
	return nil
}

func (s *Store) SearchByVector(ctx context.Context, userID, agentID string, vector []float32, limit int, filter *memdomain.Type) ([]capability.ScoredMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope := s.memories[scopeKey(userID, agentID)]
	out := make([]capability.ScoredMemory, 0, len(scope))
	for _, r := range scope {
		if r.vector == nil {
			continue
		}
		if filter != nil && r.memory.Type() != *filter {
			continue
		}
		out = append(out, capability.ScoredMemory{Memory: r.memory, Score: cosineSimilarity(vector, r.vector)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) FindSimilarMemories(ctx context.Context, userID, memoryID string, topK int, threshold float64) ([]capability.ScoredMemory, error) {
	s.mu.RLock()
	var target []float32
	for _, scope := range s.memories {
		if r, ok := scope[memoryID]; ok {
			target = r.vector
			break
		}
	}
	s.mu.RUnlock()
	if target == nil {
		return nil, nil
	}
	scored, err := s.SearchByVector(ctx, userID, "", target, 0, nil)
	if err != nil {
		return nil, err
	}
	out := make([]capability.ScoredMemory, 0, topK)
	for _, sm := range scored {
		if sm.Memory.ID().String() == memoryID {
			continue
		}
		if sm.Score < threshold {
			continue
		}
		out = append(out, sm)
		if topK > 0 && len(out) >= topK {
			break
		}
	}
	return out, nil
}

func (s *Store) UpdateMemoryEmbedding(ctx context.Context, userID, agentID, memoryID string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope := s.memories[scopeKey(userID, agentID)]
	if scope == nil || scope[memoryID] == nil {
		return apperr.New(apperr.Invalid, component, "memory not found").WithMemoryID(memoryID)
	}
	scope[memoryID].vector = vector
	return nil
}

func (s *Store) GetMemoryEmbedding(ctx context.Context, userID, agentID, memoryID string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope := s.memories[scopeKey(userID, agentID)]
	if scope == nil || scope[memoryID] == nil {
		return nil, false, nil
	}
	return scope[memoryID].vector, scope[memoryID].vector != nil, nil
}

func (s *Store) TrackEvent(ctx context.Context, ev memdomain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.MemoryID()] = append(s.events[ev.MemoryID()], ev)
	return nil
}

func (s *Store) TrackEventBatch(ctx context.Context, evs []memdomain.Event) error {
	for _, e := range evs {
		_ = s.TrackEvent(ctx, e)
	}
	return nil
}

func (s *Store) GetEvolutionHistory(ctx context.Context, userID, memoryID string) ([]memdomain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]memdomain.Event(nil), s.events[memoryID]...), nil
}

func (s *Store) Destroy(ctx context.Context) error { return nil }

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
