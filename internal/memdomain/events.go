package memdomain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind enumerates MemoryEvent lifecycle telemetry kinds (spec §3).
type EventKind string

const (
	KindCreated      EventKind = "created"
	KindAccessed     EventKind = "accessed"
	KindUpdated      EventKind = "updated"
	KindDecayed      EventKind = "decayed"
	KindConnected    EventKind = "connected"
	KindConsolidated EventKind = "consolidated"
	KindDeleted      EventKind = "deleted"
	KindArchived     EventKind = "archived"
)

// Event is the concrete Go representation of MemoryEvent, grounded on the
// teacher's shared.DomainEvent/BaseEvent pattern (internal/domain/shared/events.go)
// but flattened to a struct since the engine has one event shape, not a
// per-aggregate hierarchy of event types.
type Event struct {
	id        string
	memoryID  MemoryID
	userID    UserID
	agentID   AgentID
	kind      EventKind
	timestamp time.Time
	metadata  map[string]any
}

func newEvent(kind EventKind, memoryID MemoryID, userID UserID, agentID AgentID, ts time.Time, meta map[string]any) Event {
	return Event{
		id:        uuid.New().String(),
		memoryID:  memoryID,
		userID:    userID,
		agentID:   agentID,
		kind:      kind,
		timestamp: ts,
		metadata:  meta,
	}
}

func (e Event) ID() string              { return e.id }
func (e Event) MemoryID() MemoryID      { return e.memoryID }
func (e Event) UserID() UserID          { return e.userID }
func (e Event) AgentID() AgentID        { return e.agentID }
func (e Event) Kind() EventKind         { return e.kind }
func (e Event) Timestamp() time.Time    { return e.timestamp }
func (e Event) Metadata() map[string]any { return e.metadata }
