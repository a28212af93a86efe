// Package memdomain holds the core data model of the memory engine: the
// Memory aggregate, MemoryConnection, MemoryEvent, and the value objects
// that enforce their invariants. It mirrors the teacher's
// internal/domain/shared value-object style (private fields, validating
// factories, equality/emptiness helpers) generalized from node/edge/user
// identifiers to memory/connection/user/agent identifiers.
package memdomain

import (
	"strings"

	"github.com/google/uuid"

	"agentmem/internal/apperr"
)

const component = "memdomain"

// MemoryID uniquely identifies a Memory.
type MemoryID struct{ value string }

func NewMemoryID() MemoryID { return MemoryID{value: uuid.New().String()} }

func ParseMemoryID(id string) (MemoryID, error) {
	if strings.TrimSpace(id) == "" {
		return MemoryID{}, apperr.Invalidf(component, "memory id must not be empty")
	}
	return MemoryID{value: id}, nil
}

func (id MemoryID) String() string          { return id.value }
func (id MemoryID) IsEmpty() bool           { return id.value == "" }
func (id MemoryID) Equals(other MemoryID) bool { return id.value == other.value }

// ConnectionID uniquely identifies a MemoryConnection.
type ConnectionID struct{ value string }

func NewConnectionID() ConnectionID { return ConnectionID{value: uuid.New().String()} }

func (id ConnectionID) String() string { return id.value }
func (id ConnectionID) IsEmpty() bool  { return id.value == "" }

// UserID scopes every operation in the engine (invariant 1: non-empty on
// every read and write).
type UserID struct{ value string }

func NewUserID(id string) (UserID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return UserID{}, apperr.Invalidf(component, "user_id must not be empty")
	}
	return UserID{value: id}, nil
}

func (id UserID) String() string         { return id.value }
func (id UserID) IsEmpty() bool          { return id.value == "" }
func (id UserID) Equals(other UserID) bool { return id.value == other.value }

// AgentID identifies the owning agent within a user's memory space.
type AgentID struct{ value string }

func NewAgentID(id string) (AgentID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return AgentID{}, apperr.Invalidf(component, "agent_id must not be empty")
	}
	return AgentID{value: id}, nil
}

func (id AgentID) String() string          { return id.value }
func (id AgentID) IsEmpty() bool           { return id.value == "" }
func (id AgentID) Equals(other AgentID) bool { return id.value == other.value }

// SessionID scopes Working memory (invariant 6: mandatory for Working).
type SessionID struct{ value string }

func NewSessionID(id string) SessionID { return SessionID{value: strings.TrimSpace(id)} }

func (id SessionID) String() string { return id.value }
func (id SessionID) IsEmpty() bool  { return id.value == "" }
