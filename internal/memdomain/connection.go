package memdomain

import (
	"time"

	"agentmem/internal/apperr"
)

// ConnectionType enumerates the relationship types a MemoryConnection can
// carry (spec §3). Grounded on the teacher's edge.EdgeType enum
// (internal/domain/edge/edge.go), generalized from graph-edge semantics to
// memory-relationship semantics.
type ConnectionType string

const (
	Similar  ConnectionType = "similar"
	Related  ConnectionType = "related"
	Causes   ConnectionType = "causes"
	PartOf   ConnectionType = "part_of"
	Opposite ConnectionType = "opposite"
)

func (t ConnectionType) Valid() bool {
	switch t {
	case Similar, Related, Causes, PartOf, Opposite:
		return true
	}
	return false
}

// TriageMethod records how a connection's type was determined (§4.C7).
type TriageMethod string

const (
	TriageAutoSimilar   TriageMethod = "auto-similar"
	TriageAutoRelated   TriageMethod = "auto-related"
	TriageLLMClassified TriageMethod = "llm-classified"
)

// MemoryConnection is a typed, directed relationship between two memories
// belonging to the same user.
type MemoryConnection struct {
	id        ConnectionID
	sourceID  MemoryID
	targetID  MemoryID
	typ       ConnectionType
	strength  float64
	reason    string
	createdAt time.Time

	triageMethod        TriageMethod
	embeddingSimilarity float64
	llmUsed             bool
	cost                float64
}

// NewConnection validates and constructs a MemoryConnection, enforcing
// "source_id != target_id" (the caller must separately enforce the
// (source_id, target_id, type) uniqueness invariant against the store).
func NewConnection(sourceID, targetID MemoryID, typ ConnectionType, strength float64, reason string, now time.Time) (*MemoryConnection, error) {
	if sourceID.Equals(targetID) {
		return nil, apperr.Invalidf(component, "connection source and target must differ")
	}
	if !typ.Valid() {
		return nil, apperr.Invalidf(component, "unknown connection type %q", typ)
	}
	if strength < 0 || strength > 1 {
		return nil, apperr.Invalidf(component, "connection strength %.4f out of range [0,1]", strength)
	}
	return &MemoryConnection{
		id:        NewConnectionID(),
		sourceID:  sourceID,
		targetID:  targetID,
		typ:       typ,
		strength:  strength,
		reason:    reason,
		createdAt: now,
	}, nil
}

func (c *MemoryConnection) WithTriage(method TriageMethod, embeddingSimilarity float64, llmUsed bool, cost float64) *MemoryConnection {
	c.triageMethod = method
	c.embeddingSimilarity = embeddingSimilarity
	c.llmUsed = llmUsed
	c.cost = cost
	return c
}

func (c *MemoryConnection) ID() ConnectionID          { return c.id }
func (c *MemoryConnection) SourceID() MemoryID        { return c.sourceID }
func (c *MemoryConnection) TargetID() MemoryID        { return c.targetID }
func (c *MemoryConnection) Type() ConnectionType      { return c.typ }
func (c *MemoryConnection) Strength() float64         { return c.strength }
func (c *MemoryConnection) Reason() string            { return c.reason }
func (c *MemoryConnection) CreatedAt() time.Time      { return c.createdAt }
func (c *MemoryConnection) TriageMethod() TriageMethod { return c.triageMethod }
func (c *MemoryConnection) EmbeddingSimilarity() float64 { return c.embeddingSimilarity }
func (c *MemoryConnection) LLMUsed() bool             { return c.llmUsed }
func (c *MemoryConnection) Cost() float64             { return c.cost }

// Key returns the (source_id, target_id, type) uniqueness key (invariant 7,
// testable property 7).
func (c *MemoryConnection) Key() ConnectionKey {
	return ConnectionKey{Source: c.sourceID.String(), Target: c.targetID.String(), Type: c.typ}
}

type ConnectionKey struct {
	Source string
	Target string
	Type   ConnectionType
}
