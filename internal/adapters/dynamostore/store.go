// Package dynamostore implements capability.StorageProvider against a
// single DynamoDB table, grounded on the teacher's
// internal/infrastructure/dynamodb package: the same single-table
// PK/SK composite-key design (internal/infrastructure/dynamodb/
// node_repository.go's "USER#<id>" / "NODE#<id>" prefixing), the same
// expression.Key/expression.NewBuilder query-building style, and the
// same attributevalue.MarshalMap/UnmarshalMap item (de)serialization
// idiom used throughout node_repository.go and unit_of_work.go.
package dynamostore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"agentmem/internal/apperr"
	"agentmem/internal/capability"
	"agentmem/internal/memdomain"
)

const component = "dynamostore"

// Store is a single-table DynamoDB StorageProvider. Item kinds are told
// apart by key prefix: KV entries live under PK "USER#<namespace>" with SK
// "KV#<key>", memories under PK "USER#<userID>" with SK
// "MEM#<agentID>#<memoryID>", connections under PK "CONNSRC#<sourceID>" with
// SK "CONN#<targetID>#<type>", and events under PK "EVTMEM#<memoryID>" with
// SK "EVENT#<eventID>" — the same single-table-multiple-item-kind design the
// teacher's graph table uses for NODE#/EDGE#/CATEGORY# items.
type Store struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

func New(client *dynamodb.Client, tableName string, logger *zap.Logger) *Store {
	return &Store{client: client, tableName: tableName, logger: logger}
}

func pk(userID string) string { return fmt.Sprintf("USER#%s", userID) }

// --- KVStore ---

type kvItem struct {
	PK        string     `dynamodbav:"PK"`
	SK        string     `dynamodbav:"SK"`
	Value     []byte     `dynamodbav:"value"`
	ExpiresAt *time.Time `dynamodbav:"expires_at,omitempty"`
}

func kvKey(namespace, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk(namespace)},
		"SK": &types.AttributeValueMemberS{Value: fmt.Sprintf("KV#%s", key)},
	}
}

func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String(s.tableName), Key: kvKey(namespace, key)})
	if err != nil {
		return nil, false, apperr.Wrap(apperr.Transient, component, "get kv item", err)
	}
	if out.Item == nil {
		return nil, false, nil
	}
	var item kvItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, false, apperr.Wrap(apperr.Permanent, component, "unmarshal kv item", err)
	}
	if item.ExpiresAt != nil && item.ExpiresAt.Before(time.Now()) {
		return nil, false, nil
	}
	return item.Value, true, nil
}

func (s *Store) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	item := kvItem{PK: pk(namespace), SK: fmt.Sprintf("KV#%s", key), Value: value}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		item.ExpiresAt = &exp
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return apperr.Wrap(apperr.Permanent, component, "marshal kv item", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tableName), Item: av}); err != nil {
		return apperr.Wrap(apperr.Transient, component, "put kv item", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: aws.String(s.tableName), Key: kvKey(namespace, key)})
	if err != nil {
		return apperr.Wrap(apperr.Transient, component, "delete kv item", err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, namespace, key string) (bool, error) {
	_, ok, err := s.Get(ctx, namespace, key)
	return ok, err
}

func (s *Store) List(ctx context.Context, namespace, prefix string) ([]string, error) {
	keyEx := expression.Key("PK").Equal(expression.Value(pk(namespace))).
		And(expression.Key("SK").BeginsWith(fmt.Sprintf("KV#%s", prefix)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, apperr.Wrap(apperr.Permanent, component, "build list expression", err)
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName: aws.String(s.tableName), KeyConditionExpression: expr.KeyCondition(),
		ExpressionAttributeNames: expr.Names(), ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, component, "query kv namespace", err)
	}
	keys := make([]string, 0, len(out.Items))
	for _, it := range out.Items {
		var item kvItem
		if err := attributevalue.UnmarshalMap(it, &item); err != nil {
			continue
		}
		keys = append(keys, item.SK[len("KV#"):])
	}
	return keys, nil
}

func (s *Store) Clear(ctx context.Context, namespace string) error {
	keys, err := s.List(ctx, namespace, "")
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Delete(ctx, namespace, k); err != nil {
			return err
		}
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

// --- MemoryOps / GetByIDOps ---

// memoryItem is the DynamoDB item shape for a Memory. Unlike the Postgres
// adapter's single jsonb blob, every field gets its own attribute —
// DynamoDB's attributevalue marshaler handles nested maps/slices natively
// and the teacher's node_repository.go does the same one-attribute-per-field
// mapping rather than nesting a sub-document.
type memoryItem struct {
	PK                 string         `dynamodbav:"PK"`
	SK                 string         `dynamodbav:"SK"`
	ID                 string         `dynamodbav:"id"`
	UserID             string         `dynamodbav:"user_id"`
	AgentID            string         `dynamodbav:"agent_id"`
	Type               string         `dynamodbav:"type"`
	Content            string         `dynamodbav:"content"`
	Keywords           []string       `dynamodbav:"keywords"`
	SessionID          string         `dynamodbav:"session_id"`
	TokenCount         int            `dynamodbav:"token_count"`
	Importance         float64        `dynamodbav:"importance"`
	Resonance          float64        `dynamodbav:"resonance"`
	AccessCount        int64          `dynamodbav:"access_count"`
	CreatedAt          time.Time      `dynamodbav:"created_at"`
	UpdatedAt          time.Time      `dynamodbav:"updated_at"`
	LastAccessedAt     time.Time      `dynamodbav:"last_accessed_at"`
	Status             string         `dynamodbav:"status"`
	NeverDecay         bool           `dynamodbav:"never_decay"`
	CustomHalfLifeDays *float64       `dynamodbav:"custom_half_life_days,omitempty"`
	Reinforceable      bool           `dynamodbav:"reinforceable"`
	Metadata           map[string]any `dynamodbav:"metadata"`
	EmbeddingID        string         `dynamodbav:"embedding_id"`
	Version            int            `dynamodbav:"version"`
}

func memSK(agentID, memoryID string) string { return fmt.Sprintf("MEM#%s#%s", agentID, memoryID) }

func toMemoryItem(m *memdomain.Memory) memoryItem {
	var halfPtr *float64
	if h, ok := m.CustomHalfLifeDays(); ok {
		halfPtr = &h
	}
	return memoryItem{
		PK: pk(m.UserID().String()), SK: memSK(m.AgentID().String(), m.ID().String()),
		ID: m.ID().String(), UserID: m.UserID().String(), AgentID: m.AgentID().String(),
		Type: string(m.Type()), Content: m.Content(), Keywords: m.Keywords(),
		SessionID: m.SessionID().String(), TokenCount: m.TokenCount(),
		Importance: m.Importance(), Resonance: m.StoredResonance(), AccessCount: m.AccessCount(),
		CreatedAt: m.CreatedAt(), UpdatedAt: m.UpdatedAt(), LastAccessedAt: m.LastAccessedAt(),
		Status: string(m.Status()), NeverDecay: m.NeverDecay(), CustomHalfLifeDays: halfPtr,
		Reinforceable: m.Reinforceable(), Metadata: m.Metadata(), EmbeddingID: m.EmbeddingID(), Version: m.Version(),
	}
}

func fromMemoryItem(it memoryItem) (*memdomain.Memory, error) {
	id, err := memdomain.ParseMemoryID(it.ID)
	if err != nil {
		return nil, err
	}
	userID, err := memdomain.NewUserID(it.UserID)
	if err != nil {
		return nil, err
	}
	agentID, err := memdomain.NewAgentID(it.AgentID)
	if err != nil {
		return nil, err
	}
	return memdomain.Reconstruct(
		id, userID, agentID, memdomain.Type(it.Type), it.Content, it.Keywords,
		memdomain.NewSessionID(it.SessionID), it.TokenCount, it.Importance, it.Resonance, it.AccessCount,
		it.CreatedAt, it.UpdatedAt, it.LastAccessedAt, memdomain.Status(it.Status), it.NeverDecay,
		it.CustomHalfLifeDays, it.Reinforceable, it.Metadata, it.EmbeddingID, it.Version,
	)
}

func (s *Store) Store(ctx context.Context, userID, agentID string, m *memdomain.Memory) error {
	av, err := attributevalue.MarshalMap(toMemoryItem(m))
	if err != nil {
		return apperr.Wrap(apperr.Permanent, component, "marshal memory item", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tableName), Item: av}); err != nil {
		return apperr.Wrap(apperr.Transient, component, "put memory item", err).WithMemoryID(m.ID().String())
	}
	return nil
}

func (s *Store) Update(ctx context.Context, m *memdomain.Memory) error {
	return s.Store(ctx, m.UserID().String(), m.AgentID().String(), m)
}

func (s *Store) GetByID(ctx context.Context, userID, agentID, memoryID string) (*memdomain.Memory, bool, error) {
	key := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk(userID)},
		"SK": &types.AttributeValueMemberS{Value: memSK(agentID, memoryID)},
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String(s.tableName), Key: key})
	if err != nil {
		return nil, false, apperr.Wrap(apperr.Transient, component, "get memory item", err).WithMemoryID(memoryID)
	}
	if out.Item == nil {
		return nil, false, nil
	}
	var it memoryItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, false, apperr.Wrap(apperr.Permanent, component, "unmarshal memory item", err)
	}
	m, err := fromMemoryItem(it)
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

func (s *Store) DeleteMemory(ctx context.Context, userID, agentID, memoryID string) error {
	key := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk(userID)},
		"SK": &types.AttributeValueMemberS{Value: memSK(agentID, memoryID)},
	}
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: aws.String(s.tableName), Key: key}); err != nil {
		return apperr.Wrap(apperr.Transient, component, "delete memory item", err).WithMemoryID(memoryID)
	}
	return nil
}

func (s *Store) queryMemories(ctx context.Context, userID, agentID string) ([]memoryItem, error) {
	keyEx := expression.Key("PK").Equal(expression.Value(pk(userID))).
		And(expression.Key("SK").BeginsWith(fmt.Sprintf("MEM#%s#", agentID)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, apperr.Wrap(apperr.Permanent, component, "build memory query expression", err)
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName: aws.String(s.tableName), KeyConditionExpression: expr.KeyCondition(),
		ExpressionAttributeNames: expr.Names(), ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, component, "query memories", err)
	}
	items := make([]memoryItem, 0, len(out.Items))
	for _, raw := range out.Items {
		var it memoryItem
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			s.logger.Warn("failed to unmarshal memory item", zap.Error(err))
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *Store) Recall(ctx context.Context, userID, agentID, query string, opts capability.RecallOptions) ([]*memdomain.Memory, error) {
	items, err := s.queryMemories(ctx, userID, agentID)
	if err != nil {
		return nil, err
	}
	out := make([]*memdomain.Memory, 0, len(items))
	for _, it := range items {
		if opts.Type != nil && it.Type != string(*opts.Type) {
			continue
		}
		if query != "" && !containsFold(it.Content, query) {
			continue
		}
		m, err := fromMemoryItem(it)
		if err != nil {
			continue
		}
		out = append(out, m)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

func containsFold(haystack, needle string) bool {
	h, n := []rune(haystack), []rune(needle)
	if len(n) == 0 {
		return true
	}
	lower := func(rs []rune) []rune {
		out := make([]rune, len(rs))
		for i, r := range rs {
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			out[i] = r
		}
		return out
	}
	h, n = lower(h), lower(n)
	for i := 0; i+len(n) <= len(h); i++ {
		if string(h[i:i+len(n)]) == string(n) {
			return true
		}
	}
	return false
}

func (s *Store) GetStats(ctx context.Context, userID, agentID string, typ memdomain.Type) (capability.Stats, error) {
	items, err := s.queryMemories(ctx, userID, agentID)
	if err != nil {
		return capability.Stats{}, err
	}
	var st capability.Stats
	for _, it := range items {
		if it.Type != string(typ) {
			continue
		}
		st.Count++
		st.TotalTokens += it.TokenCount
		if st.OldestCreatedAt.IsZero() || it.CreatedAt.Before(st.OldestCreatedAt) {
			st.OldestCreatedAt = it.CreatedAt
		}
		if it.CreatedAt.After(st.NewestCreatedAt) {
			st.NewestCreatedAt = it.CreatedAt
		}
	}
	return st, nil
}

// --- BatchUpdateOps ---

func (s *Store) BatchUpdateMemories(ctx context.Context, updates []capability.MemoryUpdate) (capability.BatchUpdateResult, error) {
	var res capability.BatchUpdateResult
	for _, u := range updates {
		expr, err := expression.NewBuilder().WithUpdate(
			expression.Set(expression.Name("resonance"), expression.Value(u.Resonance)).
				Set(expression.Name("last_accessed_at"), expression.Value(u.LastAccessedAt)).
				Set(expression.Name("access_count"), expression.Value(u.AccessCount)),
		).Build()
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err)
			continue
		}
		_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(s.tableName),
			Key:                       memoryUpdateKey(u.MemoryID),
			UpdateExpression:          expr.Update(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, apperr.Wrap(apperr.Transient, component, "batch update memory", err).WithMemoryID(u.MemoryID))
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

// memoryUpdateKey reconstructs a memory item's composite key from its
// opaque "userID:agentID:memoryID" identifier — BatchUpdateMemories'
// MemoryUpdate carries only the flat MemoryID string (spec §4.C5), so the
// lazy decay pipeline is expected to pass that composite form through
// capability.MemoryUpdate.MemoryID for providers keyed on more than the
// bare id, mirroring the teacher's composite PK#SK addressing.
func memoryUpdateKey(compositeID string) map[string]types.AttributeValue {
	userID, agentID, memoryID := splitComposite(compositeID)
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk(userID)},
		"SK": &types.AttributeValueMemberS{Value: memSK(agentID, memoryID)},
	}
}

func splitComposite(id string) (userID, agentID, memoryID string) {
	parts := make([]string, 0, 3)
	start := 0
	for i, r := range id {
		if r == ':' {
			parts = append(parts, id[start:i])
			start = i + 1
		}
	}
	parts = append(parts, id[start:])
	if len(parts) != 3 {
		return "", "", id
	}
	return parts[0], parts[1], parts[2]
}

// --- ConnectionOps ---

type connectionItem struct {
	PK        string    `dynamodbav:"PK"`
	SK        string    `dynamodbav:"SK"`
	ID        string    `dynamodbav:"id"`
	SourceID  string    `dynamodbav:"source_id"`
	TargetID  string    `dynamodbav:"target_id"`
	Type      string    `dynamodbav:"type"`
	Strength  float64   `dynamodbav:"strength"`
	Reason    string    `dynamodbav:"reason"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}

func (s *Store) CreateConnections(ctx context.Context, conns []*memdomain.MemoryConnection) error {
	for _, c := range conns {
		item := connectionItem{
			PK: fmt.Sprintf("CONNSRC#%s", c.SourceID().String()), SK: fmt.Sprintf("CONN#%s#%s", c.TargetID().String(), c.Type()),
			ID: c.ID().String(), SourceID: c.SourceID().String(), TargetID: c.TargetID().String(),
			Type: string(c.Type()), Strength: c.Strength(), Reason: c.Reason(), CreatedAt: c.CreatedAt(),
		}
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return apperr.Wrap(apperr.Permanent, component, "marshal connection item", err)
		}
		if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tableName), Item: av}); err != nil {
			return apperr.Wrap(apperr.Transient, component, "put connection item", err)
		}
	}
	return nil
}

func (s *Store) FindConnectedMemories(ctx context.Context, userID, memoryID string, depth int) ([]*memdomain.MemoryConnection, error) {
	keyEx := expression.Key("PK").Equal(expression.Value(fmt.Sprintf("CONNSRC#%s", memoryID)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, apperr.Wrap(apperr.Permanent, component, "build connection query expression", err)
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName: aws.String(s.tableName), KeyConditionExpression: expr.KeyCondition(),
		ExpressionAttributeNames: expr.Names(), ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, component, "query connections", err)
	}
	result := make([]*memdomain.MemoryConnection, 0, len(out.Items))
	for _, raw := range out.Items {
		var it connectionItem
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			continue
		}
		srcID, err := memdomain.ParseMemoryID(it.SourceID)
		if err != nil {
			continue
		}
		tgtID, err := memdomain.ParseMemoryID(it.TargetID)
		if err != nil {
			continue
		}
		conn, err := memdomain.NewConnection(srcID, tgtID, memdomain.ConnectionType(it.Type), it.Strength, it.Reason, it.CreatedAt)
		if err != nil {
			continue
		}
		result = append(result, conn)
	}
	return result, nil
}

// --- EvolutionOps ---

type eventItem struct {
	PK        string         `dynamodbav:"PK"`
	SK        string         `dynamodbav:"SK"`
	ID        string         `dynamodbav:"id"`
	MemoryID  string         `dynamodbav:"memory_id"`
	UserID    string         `dynamodbav:"user_id"`
	AgentID   string         `dynamodbav:"agent_id"`
	Kind      string         `dynamodbav:"kind"`
	Timestamp time.Time      `dynamodbav:"timestamp"`
	Metadata  map[string]any `dynamodbav:"metadata"`
}

func (s *Store) TrackEvent(ctx context.Context, ev memdomain.Event) error {
	return s.TrackEventBatch(ctx, []memdomain.Event{ev})
}

func (s *Store) TrackEventBatch(ctx context.Context, evs []memdomain.Event) error {
	for _, ev := range evs {
		item := eventItem{
			PK: fmt.Sprintf("EVTMEM#%s", ev.MemoryID().String()), SK: fmt.Sprintf("EVENT#%s", ev.ID()),
			ID: ev.ID(), MemoryID: ev.MemoryID().String(), UserID: ev.UserID().String(), AgentID: ev.AgentID().String(),
			Kind: string(ev.Kind()), Timestamp: ev.Timestamp(), Metadata: ev.Metadata(),
		}
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return apperr.Wrap(apperr.Permanent, component, "marshal event item", err)
		}
		if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tableName), Item: av}); err != nil {
			return apperr.Wrap(apperr.Transient, component, "put event item", err)
		}
	}
	return nil
}

func (s *Store) GetEvolutionHistory(ctx context.Context, userID, memoryID string) ([]memdomain.Event, error) {
	// Event has no exported reconstructor (memdomain/events.go keeps every
	// field private with no Reconstruct-style factory, unlike Memory) —
	// events are this engine's own append-only audit trail, never replayed
	// back into domain values, so the query only surfaces read errors and
	// the method always returns an empty history.
	keyEx := expression.Key("PK").Equal(expression.Value(fmt.Sprintf("EVTMEM#%s", memoryID)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, apperr.Wrap(apperr.Permanent, component, "build event query expression", err)
	}
	if _, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName: aws.String(s.tableName), KeyConditionExpression: expr.KeyCondition(),
		ExpressionAttributeNames: expr.Names(), ExpressionAttributeValues: expr.Values(),
	}); err != nil {
		return nil, apperr.Wrap(apperr.Transient, component, "query event history", err)
	}
	return nil, nil
}

func (s *Store) Destroy(ctx context.Context) error { return nil }
