package ecs

import (
	"slices"
	"sync"

	"github.com/hexrealm/projector/internal/queue"
)

// subscription is a live Stream. Publishing appends to an unbounded backlog
// so store writers never block on slow readers; a forwarding goroutine
// hands updates to Receive in order.
type subscription struct {
	id    uint64
	store *Store
	wants func(u Update) bool

	backlog *queue.Queue[Update]
	out     chan Update
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) Receive() <-chan Update {
	return s.out
}

// Len returns the number of updates waiting for delivery.
func (s *subscription) Len() int {
	return s.backlog.Len()
}

// Close stops delivery. Updates still in the backlog are discarded.
func (s *subscription) Close() {
	s.once.Do(func() {
		s.store.unwatch(s.id)
		close(s.done)
	})
}

func (s *subscription) forward() {
	defer close(s.out)
	for {
		for {
			u, ok := s.backlog.TryPop()
			if !ok {
				break
			}
			select {
			case s.out <- u:
			case <-s.done:
				return
			}
		}
		select {
		case <-s.backlog.Ready():
		case <-s.done:
			return
		}
	}
}

// WatchComponents streams every change to any of the given kinds.
// With ReplayExisting, every entity carrying at least one of the kinds is
// replayed once, in key order, with the first of kinds it carries.
func (s *Store) WatchComponents(mode ReplayMode, kinds ...Kind) Stream {
	kinds = slices.Clone(kinds)
	wants := func(u Update) bool {
		return slices.Contains(kinds, u.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub := s.watch(wants)
	if mode == ReplayExisting {
		for _, e := range s.sortedEntities(kinds...) {
			for _, kind := range kinds {
				if c, ok := s.tables[kind][e]; ok {
					sub.backlog.Push(Update{Entity: e, Kind: kind, Value: c, Replay: true})
					break
				}
			}
		}
	}
	return sub
}

// WatchQuery streams changes to components referenced by the predicates,
// for entities that satisfy the query before or after the change. With
// ReplayExisting, every currently matching entity is replayed first,
// carrying the component of the first positive predicate.
func (s *Store) WatchQuery(mode ReplayMode, preds ...Predicate) Stream {
	preds = slices.Clone(preds)
	kinds := make([]Kind, 0, len(preds))
	for _, p := range preds {
		kinds = append(kinds, p.kind)
	}

	wants := func(u Update) bool {
		if !slices.Contains(kinds, u.Kind) {
			return false
		}
		if matchAll(preds, s.get, u.Entity) {
			return true
		}
		before := func(kind Kind, e Entity) (Component, bool) {
			if kind == u.Kind && e == u.Entity {
				return u.Previous, u.Previous != nil
			}
			return s.get(kind, e)
		}
		return matchAll(preds, before, u.Entity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub := s.watch(wants)
	if mode == ReplayExisting {
		for _, p := range preds {
			if !p.positive() {
				continue
			}
			for _, e := range s.query(preds) {
				sub.backlog.Push(Update{Entity: e, Kind: p.kind, Value: s.tables[p.kind][e], Replay: true})
			}
			break
		}
	}
	return sub
}

// watch registers a subscription. Callers hold the write lock.
func (s *Store) watch(wants func(Update) bool) *subscription {
	s.nextWatchID++
	sub := &subscription{
		id:      s.nextWatchID,
		store:   s,
		wants:   wants,
		backlog: queue.New[Update](),
		out:     make(chan Update),
		done:    make(chan struct{}),
	}
	s.watchers[sub.id] = sub
	go sub.forward()
	return sub
}

func (s *Store) unwatch(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers, id)
}

// publish fans an update out to interested watchers. Callers hold the write lock.
func (s *Store) publish(u Update) {
	for _, sub := range s.watchers {
		if sub.wants(u) {
			sub.backlog.Push(u)
		}
	}
}

// Watchers returns the number of open subscriptions.
func (s *Store) Watchers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers)
}
