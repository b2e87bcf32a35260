// Package ecs is the read side of the entity-component store: point lookups,
// predicate queries and change streams. Store is an in-memory reference
// implementation of Source; the projection layer only ever reads from it.
package ecs

import (
	"github.com/hexrealm/projector/internal/channel"
	"github.com/hexrealm/projector/pkg/core"
)

// Entity is an opaque store key.
type Entity uint64

// KeyOf returns the store key of a single-key record addressed by domain id,
// as used by back-references such as EntityOwner.EntityOwnerID.
func KeyOf(id core.ID) Entity {
	return Entity(id)
}

// Kind names a component table.
type Kind string

// Component is a typed record attached to an entity.
type Component interface {
	Kind() Kind
	// Field returns a named field value for HasValue/NotValue filters.
	Field(name string) (any, bool)
}

// Fields is a set of field equality constraints.
type Fields map[string]any

// Update describes one change to one component of one entity. Value is nil
// when the component was removed; Previous is nil when it was added or when
// the update is a replay of existing state.
type Update struct {
	Entity   Entity
	Kind     Kind
	Value    Component
	Previous Component
	Replay   bool // current state delivered on subscribe, not a change
}

// Is reports whether the update concerns the given component kind.
func (u Update) Is(kind Kind) bool {
	return u.Kind == kind
}

// Removed reports whether the update is a component removal.
func (u Update) Removed() bool {
	return u.Value == nil
}

// ReplayMode selects whether a new subscription first replays current state.
type ReplayMode int

const (
	// ReplayExisting emits one update per currently matching entity before
	// live changes, however many watched kinds the entity carries.
	ReplayExisting ReplayMode = iota
	// ChangesOnly emits live changes only.
	ChangesOnly
)

func (m ReplayMode) String() string {
	if m == ChangesOnly {
		return "changes"
	}
	return "existing"
}

// Stream delivers updates in order until closed.
type Stream interface {
	channel.Receiver[Update]
	Close()
}

// Source is the component store as seen by projections.
type Source interface {
	Get(kind Kind, e Entity) (Component, bool)
	Query(preds ...Predicate) []Entity
	WatchComponents(mode ReplayMode, kinds ...Kind) Stream
	WatchQuery(mode ReplayMode, preds ...Predicate) Stream
}

// Value is a typed Get: the kind is taken from T.
func Value[T Component](src Source, e Entity) (T, bool) {
	var zero T
	c, ok := src.Get(zero.Kind(), e)
	if !ok {
		return zero, false
	}
	v, ok := c.(T)
	return v, ok
}

// As returns c as T when c is non-nil and of that type.
func As[T Component](c Component) (T, bool) {
	if c == nil {
		var zero T
		return zero, false
	}
	v, ok := c.(T)
	return v, ok
}
