// internal/sink/memory/memory.go
package memory

import (
	"cmp"
	"slices"
	"sync"

	"github.com/hexrealm/projector/internal/geo"
	"github.com/hexrealm/projector/pkg/core"
)

type innerCell struct {
	col, row uint32
}

// Scene keeps the latest projected state in memory: what a renderer would
// currently be drawing.
type Scene struct {
	mu sync.RWMutex

	armies     map[core.ID]core.ArmyUpdate
	structures map[core.ID]core.StructureUpdate
	realms     map[core.ID]core.RealmUpdate
	battles    map[core.ID]core.BattleUpdate
	explored   map[core.HexPosition]struct{}
	buildings  map[core.HexPosition]map[innerCell]core.BuildingUpdate
}

// Counts summarizes a Scene.
type Counts struct {
	Armies     int `json:"armies"`
	Structures int `json:"structures"`
	Realms     int `json:"realms"`
	Battles    int `json:"battles"`
	Explored   int `json:"explored"`
	Buildings  int `json:"buildings"`
}

// New creates an empty scene
func New() *Scene {
	s := &Scene{}
	s.reset()
	return s
}

func (s *Scene) reset() {
	s.armies = make(map[core.ID]core.ArmyUpdate)
	s.structures = make(map[core.ID]core.StructureUpdate)
	s.realms = make(map[core.ID]core.RealmUpdate)
	s.battles = make(map[core.ID]core.BattleUpdate)
	s.explored = make(map[core.HexPosition]struct{})
	s.buildings = make(map[core.HexPosition]map[innerCell]core.BuildingUpdate)
}

// Init clears the scene
func (s *Scene) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

// Close is a no-op
func (s *Scene) Close() error {
	return nil
}

func (s *Scene) RecordArmy(e core.ArmyUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armies[e.EntityID] = e
	return nil
}

func (s *Scene) RecordStructure(e core.StructureUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.structures[e.EntityID] = e
	return nil
}

func (s *Scene) RecordRealm(e core.RealmUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.realms[e.EntityID] = e
	return nil
}

// RecordBattle stores the battle, or forgets it on a tombstone.
func (s *Scene) RecordBattle(e core.BattleUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Deleted {
		delete(s.battles, e.EntityID)
		return nil
	}
	s.battles[e.EntityID] = e
	return nil
}

func (s *Scene) RecordTile(e core.TileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.RemoveExplored {
		delete(s.explored, e.HexCoords)
		return nil
	}
	s.explored[e.HexCoords] = struct{}{}
	return nil
}

func (s *Scene) RecordBuilding(e core.BuildingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cells, ok := s.buildings[e.OuterCoords]
	if !ok {
		cells = make(map[innerCell]core.BuildingUpdate)
		s.buildings[e.OuterCoords] = cells
	}
	cells[innerCell{e.InnerCol, e.InnerRow}] = e
	return nil
}

// Army returns the latest state of one army.
func (s *Scene) Army(id core.ID) (core.ArmyUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.armies[id]
	return a, ok
}

// Structure returns the latest state of one structure.
func (s *Scene) Structure(id core.ID) (core.StructureUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.structures[id]
	return st, ok
}

// Realm returns the latest state of one realm.
func (s *Scene) Realm(id core.ID) (core.RealmUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.realms[id]
	return r, ok
}

// Battle returns a battle that has not been deleted.
func (s *Scene) Battle(id core.ID) (core.BattleUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.battles[id]
	return b, ok
}

// Explored reports whether a hex is currently explored.
func (s *Scene) Explored(hex core.HexPosition) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.explored[hex]
	return ok
}

// Buildings returns the buildings of one outer hex ordered by inner cell.
func (s *Scene) Buildings(hex core.HexPosition) []core.BuildingUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.BuildingUpdate, 0, len(s.buildings[hex]))
	for _, b := range s.buildings[hex] {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b core.BuildingUpdate) int {
		return cmp.Or(cmp.Compare(a.InnerRow, b.InnerRow), cmp.Compare(a.InnerCol, b.InnerCol))
	})
	return out
}

// ArmiesNear returns the armies within radius hex steps of center, nearest first.
func (s *Scene) ArmiesNear(center core.HexPosition, radius int64) []core.ArmyUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		army core.ArmyUpdate
		dist int64
	}
	var hits []hit
	for _, a := range s.armies {
		if d := geo.Distance(center, a.HexCoords); d <= radius {
			hits = append(hits, hit{a, d})
		}
	}
	slices.SortFunc(hits, func(a, b hit) int {
		return cmp.Or(cmp.Compare(a.dist, b.dist), cmp.Compare(a.army.EntityID, b.army.EntityID))
	})

	out := make([]core.ArmyUpdate, len(hits))
	for i, h := range hits {
		out[i] = h.army
	}
	return out
}

// StructuresWithin returns the structures whose hex centre lies within
// distance world units of center, ordered by entity id.
func (s *Scene) StructuresWithin(center core.HexPosition, distance float64) []core.StructureUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.StructureUpdate
	for _, st := range s.structures {
		if geo.WorldDistance(center, st.HexCoords) <= distance {
			out = append(out, st)
		}
	}
	slices.SortFunc(out, func(a, b core.StructureUpdate) int {
		return cmp.Compare(a.EntityID, b.EntityID)
	})
	return out
}

// Counts returns the size of each collection.
func (s *Scene) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := Counts{
		Armies:     len(s.armies),
		Structures: len(s.structures),
		Realms:     len(s.realms),
		Battles:    len(s.battles),
		Explored:   len(s.explored),
	}
	for _, cells := range s.buildings {
		c.Buildings += len(cells)
	}
	return c
}
