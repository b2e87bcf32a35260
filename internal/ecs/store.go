package ecs

import (
	"slices"
	"sync"
)

// Store is an in-memory component store: one table per kind, each mapping
// entity to its current record. Writes publish updates to watchers while the
// write lock is held, so every watcher observes changes in commit order.
type Store struct {
	mu     sync.RWMutex
	tables map[Kind]map[Entity]Component

	nextWatchID uint64
	watchers    map[uint64]*subscription
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		tables:   make(map[Kind]map[Entity]Component),
		watchers: make(map[uint64]*subscription),
	}
}

var _ Source = (*Store)(nil)

// Get returns the entity's component of the given kind.
func (s *Store) Get(kind Kind, e Entity) (Component, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(kind, e)
}

func (s *Store) get(kind Kind, e Entity) (Component, bool) {
	c, ok := s.tables[kind][e]
	return c, ok
}

// Set adds or replaces the entity's component of c's kind.
func (s *Store) Set(e Entity, c Component) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := c.Kind()
	table, ok := s.tables[kind]
	if !ok {
		table = make(map[Entity]Component)
		s.tables[kind] = table
	}
	prev := table[e]
	table[e] = c
	s.publish(Update{Entity: e, Kind: kind, Value: c, Previous: prev})
}

// Remove deletes the entity's component of the given kind. Removing an
// absent component is a no-op and publishes nothing.
func (s *Store) Remove(kind Kind, e Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.tables[kind][e]
	if !ok {
		return
	}
	delete(s.tables[kind], e)
	s.publish(Update{Entity: e, Kind: kind, Previous: prev})
}

// Count returns the number of entities carrying the kind.
func (s *Store) Count(kind Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[kind])
}

// Query returns the sorted set of entities satisfying every predicate.
// A query without a Has or HasValue predicate matches nothing.
func (s *Store) Query(preds ...Predicate) []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query(preds)
}

func (s *Store) query(preds []Predicate) []Entity {
	var base *Predicate
	for i := range preds {
		if preds[i].positive() {
			base = &preds[i]
			break
		}
	}
	if base == nil {
		return []Entity{}
	}

	out := make([]Entity, 0, len(s.tables[base.kind]))
	for e := range s.tables[base.kind] {
		if matchAll(preds, s.get, e) {
			out = append(out, e)
		}
	}
	slices.Sort(out)
	return out
}

// sortedEntities returns, in key order, the entities carrying any of kinds.
func (s *Store) sortedEntities(kinds ...Kind) []Entity {
	seen := make(map[Entity]struct{})
	for _, kind := range kinds {
		for e := range s.tables[kind] {
			seen[e] = struct{}{}
		}
	}
	out := make([]Entity, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}
