// internal/sink/sink.go
package sink

import (
	"errors"

	"github.com/hexrealm/projector/pkg/core"
)

// Sink is the interface every consumer of projected events must satisfy
type Sink interface {
	// Lifecycle
	Init() error
	Close() error

	// Event recording
	RecordArmy(e core.ArmyUpdate) error
	RecordStructure(e core.StructureUpdate) error
	RecordRealm(e core.RealmUpdate) error
	RecordBattle(e core.BattleUpdate) error
	RecordTile(e core.TileUpdate) error
	RecordBuilding(e core.BuildingUpdate) error
}

// Multi fans every call out to all sinks. Errors are joined; one failing
// sink does not stop the others.
type Multi []Sink

var _ Sink = Multi(nil)

func (m Multi) each(fn func(Sink) error) error {
	var errs []error
	for _, s := range m {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Init() error  { return m.each(Sink.Init) }
func (m Multi) Close() error { return m.each(Sink.Close) }

func (m Multi) RecordArmy(e core.ArmyUpdate) error {
	return m.each(func(s Sink) error { return s.RecordArmy(e) })
}

func (m Multi) RecordStructure(e core.StructureUpdate) error {
	return m.each(func(s Sink) error { return s.RecordStructure(e) })
}

func (m Multi) RecordRealm(e core.RealmUpdate) error {
	return m.each(func(s Sink) error { return s.RecordRealm(e) })
}

func (m Multi) RecordBattle(e core.BattleUpdate) error {
	return m.each(func(s Sink) error { return s.RecordBattle(e) })
}

func (m Multi) RecordTile(e core.TileUpdate) error {
	return m.each(func(s Sink) error { return s.RecordTile(e) })
}

func (m Multi) RecordBuilding(e core.BuildingUpdate) error {
	return m.each(func(s Sink) error { return s.RecordBuilding(e) })
}
