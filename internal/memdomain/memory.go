package memdomain

import (
	"time"

	"agentmem/internal/apperr"
)

// Type classifies a Memory into one of the four lifecycle buckets. Type is
// immutable once a Memory is created (invariant 5).
type Type string

const (
	Working    Type = "working"
	Episodic   Type = "episodic"
	Semantic   Type = "semantic"
	Procedural Type = "procedural"
)

func (t Type) Valid() bool {
	switch t {
	case Working, Episodic, Semantic, Procedural:
		return true
	}
	return false
}

// DefaultHalfLifeDays returns the per-type default half-life used by the
// lazy decay calculator (§4.C4 step 5) when no custom_half_life_days is set.
func (t Type) DefaultHalfLifeDays() float64 {
	switch t {
	case Working:
		return 7
	case Episodic:
		return 30
	case Semantic:
		return 90
	case Procedural:
		return 365
	default:
		return 30
	}
}

// Status is the memory lifecycle flag (invariant 4, state machine in
// spec §4: Active -> Archived -> Deleted, archive reversible, delete
// terminal).
type Status string

const (
	Active   Status = "active"
	Archived Status = "archived"
)

// Metadata reserved keys (spec §3).
const (
	MetaOriginalConversationDate = "original_conversation_date"
	MetaExtractionMethod         = "extraction_method"
	MetaTier                     = "tier"
	MetaRuleID                   = "rule_id"
	MetaTemporalInsights         = "temporal_insights"
	MetaMergedFrom               = "merged_from"
)

const MaxKeywords = 20

// Memory is the primary entity of the engine. Field layout and the
// validating-factory / getter style are grounded on the teacher's
// internal/domain/node.Node (itself explicitly documented there as
// "a memory, thought, or piece of knowledge in a user's knowledge graph").
type Memory struct {
	id        MemoryID
	userID    UserID
	agentID   AgentID
	typ       Type
	content   string
	keywords  []string
	sessionID SessionID
	tokenCount int

	importance  Importance
	resonance   Resonance // stored resonance; observers must use decay.Calculate for the true value (invariant 2)
	accessCount int64

	createdAt      time.Time
	updatedAt      time.Time
	lastAccessedAt time.Time

	status              Status
	neverDecay          bool
	customHalfLifeDays  *float64
	reinforceable       bool

	metadata   map[string]any
	embeddingID string

	version int
	events  []Event
}

// NewMemoryParams bundles NewMemory's optional fields so the constructor
// stays readable as the type grows (mirrors the teacher's options-struct
// factories for Node/Edge creation).
type NewMemoryParams struct {
	Content            string
	Keywords           []string
	SessionID          string
	TokenCount         int
	Importance         float64
	NeverDecay         bool
	CustomHalfLifeDays *float64
	Reinforceable      bool
	Metadata           map[string]any
	CreatedAt          time.Time // zero means "now"; PRIME preserves original message time here
}

// NewMemory validates and constructs a Memory, enforcing invariants 1, 3, 6
// and 8 before any I/O is attempted.
func NewMemory(userID UserID, agentID AgentID, typ Type, p NewMemoryParams, now time.Time) (*Memory, error) {
	if userID.IsEmpty() {
		return nil, apperr.Invalidf(component, "user_id must not be empty")
	}
	if agentID.IsEmpty() {
		return nil, apperr.Invalidf(component, "agent_id must not be empty")
	}
	if !typ.Valid() {
		return nil, apperr.Invalidf(component, "unknown memory type %q", typ)
	}
	if typ == Working && p.SessionID == "" {
		return nil, apperr.Invalidf(component, "working memory requires a session_id")
	}
	if len(p.Keywords) > MaxKeywords {
		p.Keywords = p.Keywords[:MaxKeywords]
	}

	importance, err := NewImportance(p.Importance)
	if err != nil {
		return nil, err
	}

	created := p.CreatedAt
	if created.IsZero() {
		created = now
	}
	if now.Before(created) {
		now = created
	}

	meta := p.Metadata
	if meta == nil {
		meta = map[string]any{}
	}

	m := &Memory{
		id:                 NewMemoryID(),
		userID:             userID,
		agentID:            agentID,
		typ:                typ,
		content:            p.Content,
		keywords:           append([]string(nil), p.Keywords...),
		sessionID:          NewSessionID(p.SessionID),
		tokenCount:         p.TokenCount,
		importance:         importance,
		resonance:          FullResonance(),
		accessCount:        0,
		createdAt:          created,
		updatedAt:          created,
		lastAccessedAt:     created,
		status:             Active,
		neverDecay:         p.NeverDecay,
		customHalfLifeDays: p.CustomHalfLifeDays,
		reinforceable:      p.Reinforceable,
		metadata:           meta,
		version:            0,
	}
	m.addEvent(newEvent(KindCreated, m.id, userID, agentID, now, nil))
	return m, nil
}

// Reconstruct rebuilds a Memory from persisted fields without generating
// domain events (grounded on the teacher's ReconstructNode factory used by
// the repository layer).
func Reconstruct(
	id MemoryID, userID UserID, agentID AgentID, typ Type,
	content string, keywords []string, sessionID SessionID, tokenCount int,
	importance, resonance float64, accessCount int64,
	createdAt, updatedAt, lastAccessedAt time.Time,
	status Status, neverDecay bool, customHalfLifeDays *float64, reinforceable bool,
	metadata map[string]any, embeddingID string, version int,
) (*Memory, error) {
	imp, err := NewImportance(importance)
	if err != nil {
		return nil, err
	}
	res, err := NewResonance(clamp01(resonance))
	if err != nil {
		return nil, err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Memory{
		id: id, userID: userID, agentID: agentID, typ: typ,
		content: content, keywords: keywords, sessionID: sessionID, tokenCount: tokenCount,
		importance: imp, resonance: res, accessCount: accessCount,
		createdAt: createdAt, updatedAt: updatedAt, lastAccessedAt: lastAccessedAt,
		status: status, neverDecay: neverDecay, customHalfLifeDays: customHalfLifeDays,
		reinforceable: reinforceable, metadata: metadata, embeddingID: embeddingID, version: version,
	}, nil
}

// Getters

func (m *Memory) ID() MemoryID             { return m.id }
func (m *Memory) UserID() UserID           { return m.userID }
func (m *Memory) AgentID() AgentID         { return m.agentID }
func (m *Memory) Type() Type               { return m.typ }
func (m *Memory) Content() string          { return m.content }
func (m *Memory) Keywords() []string       { return m.keywords }
func (m *Memory) SessionID() SessionID     { return m.sessionID }
func (m *Memory) TokenCount() int          { return m.tokenCount }
func (m *Memory) Importance() float64      { return m.importance.Float64() }
func (m *Memory) StoredResonance() float64 { return m.resonance.Float64() }
func (m *Memory) AccessCount() int64       { return m.accessCount }
func (m *Memory) CreatedAt() time.Time     { return m.createdAt }
func (m *Memory) UpdatedAt() time.Time     { return m.updatedAt }
func (m *Memory) LastAccessedAt() time.Time { return m.lastAccessedAt }
func (m *Memory) Status() Status           { return m.status }
func (m *Memory) NeverDecay() bool         { return m.neverDecay }
func (m *Memory) Reinforceable() bool      { return m.reinforceable }
func (m *Memory) EmbeddingID() string      { return m.embeddingID }
func (m *Memory) Version() int             { return m.version }

func (m *Memory) CustomHalfLifeDays() (float64, bool) {
	if m.customHalfLifeDays == nil {
		return 0, false
	}
	return *m.customHalfLifeDays, true
}

func (m *Memory) HalfLifeDays() float64 {
	if v, ok := m.CustomHalfLifeDays(); ok {
		return v
	}
	return m.typ.DefaultHalfLifeDays()
}

func (m *Memory) Metadata() map[string]any { return m.metadata }

func (m *Memory) MetaString(key string) (string, bool) {
	v, ok := m.metadata[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Mutators — each bumps updated_at and version, preserving invariant 8
// (updated_at >= created_at).

// ApplyDecayResult persists a decay/reinforcement outcome computed by the
// decay package (kept out of this package to preserve C4's purity).
func (m *Memory) ApplyDecayResult(newResonance float64, accessedAt time.Time, reinforced bool, now time.Time) error {
	res, err := NewResonance(clamp01(newResonance))
	if err != nil {
		return err
	}
	m.resonance = res
	if accessedAt.After(m.lastAccessedAt) {
		m.lastAccessedAt = accessedAt
	}
	m.updatedAt = now
	m.version++
	kind := KindDecayed
	if reinforced {
		kind = KindAccessed
	}
	m.addEvent(newEvent(kind, m.id, m.userID, m.agentID, now, map[string]any{"resonance": newResonance}))
	return nil
}

// RecordAccess increments access_count and bumps last_accessed_at without
// touching resonance (used by recall before/independent of decay).
func (m *Memory) RecordAccess(now time.Time) {
	m.accessCount++
	if now.After(m.lastAccessedAt) {
		m.lastAccessedAt = now
	}
	m.updatedAt = now
	m.version++
}

func (m *Memory) Archive(now time.Time) error {
	if m.status == Archived {
		return apperr.Invalidf(component, "memory %s is already archived", m.id)
	}
	m.status = Archived
	m.updatedAt = now
	m.version++
	m.addEvent(newEvent(KindArchived, m.id, m.userID, m.agentID, now, nil))
	return nil
}

func (m *Memory) SetMetadata(key string, value any, now time.Time) {
	m.metadata[key] = value
	m.updatedAt = now
}

func (m *Memory) SetEmbeddingID(id string, now time.Time) {
	m.embeddingID = id
	m.updatedAt = now
	m.version++
}

func (m *Memory) GetUncommittedEvents() []Event { return m.events }
func (m *Memory) MarkEventsCommitted()          { m.events = nil }

func (m *Memory) addEvent(e Event) { m.events = append(m.events, e) }
