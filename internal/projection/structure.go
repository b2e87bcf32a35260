package projection

import (
	"github.com/hexrealm/projector/internal/ecs"
	"github.com/hexrealm/projector/internal/model"
	"github.com/hexrealm/projector/internal/progress"
	"github.com/hexrealm/projector/pkg/core"
)

// Structure projects Structure entities. Progress changes re-emit the
// hyperstructure they contribute to; replayed Progress records are skipped
// since the replayed structure already aggregates them.
func (m *Manager) Structure() Projection[core.StructureUpdate] {
	return Projection[core.StructureUpdate]{
		m:       m,
		concept: "structure",
		replay:  ecs.ReplayExisting,
		watch: func(mode ecs.ReplayMode) ecs.Stream {
			return m.source.WatchComponents(mode, model.KindStructure, model.KindPosition, model.KindProgress)
		},
		derive: m.deriveStructure,
	}
}

func (m *Manager) deriveStructure(u ecs.Update) (core.StructureUpdate, bool) {
	e := u.Entity
	if u.Is(model.KindProgress) {
		if u.Replay {
			return core.StructureUpdate{}, false
		}
		p, ok := ecs.As[model.Progress](u.Value)
		if !ok {
			if p, ok = ecs.As[model.Progress](u.Previous); !ok {
				return core.StructureUpdate{}, false
			}
		}
		e = ecs.KeyOf(p.HyperstructureEntityID)
	}

	structure, ok := ecs.Value[model.Structure](m.source, e)
	if !ok {
		return core.StructureUpdate{}, false
	}

	var hex core.HexPosition
	if pos, ok := ecs.Value[model.Position](m.source, e); ok {
		hex = pos.Hex()
	}

	st := structure.StructureType()
	ev := core.StructureUpdate{
		EntityID:      structure.EntityID,
		HexCoords:     hex,
		StructureType: st,
		Stage:         core.Stage1,
		Owner:         m.owner(e),
	}

	if st == core.StructureRealm {
		ev.Level = core.RealmSettlement
		if realm, ok := ecs.Value[model.Realm](m.source, e); ok {
			ev.Level = realm.Level
		}
	}

	if m.stageable[st] {
		res := m.aggregator.Aggregate(m.progressRecords(structure.EntityID))
		ev.Stage = res.Stage
		ev.Completion = res.Fraction
		ev.Progress = res.Resources
	}
	return ev, true
}

// progressRecords collects the contributions toward one objective.
func (m *Manager) progressRecords(id core.ID) []progress.Record {
	keys := m.source.Query(
		ecs.Has(model.KindProgress),
		ecs.HasValue(model.KindProgress, ecs.Fields{"hyperstructure_entity_id": id}),
	)
	records := make([]progress.Record, 0, len(keys))
	for _, k := range keys {
		if p, ok := ecs.Value[model.Progress](m.source, k); ok {
			records = append(records, progress.Record{Resource: p.ResourceType, Amount: p.Amount})
		}
	}
	return records
}

// Realm projects entities carrying both Realm and Position.
func (m *Manager) Realm() Projection[core.RealmUpdate] {
	return Projection[core.RealmUpdate]{
		m:       m,
		concept: "realm",
		replay:  ecs.ReplayExisting,
		watch: func(mode ecs.ReplayMode) ecs.Stream {
			return m.source.WatchComponents(mode, model.KindRealm, model.KindPosition)
		},
		derive: m.deriveRealm,
	}
}

func (m *Manager) deriveRealm(u ecs.Update) (core.RealmUpdate, bool) {
	realm, ok := ecs.Value[model.Realm](m.source, u.Entity)
	if !ok {
		return core.RealmUpdate{}, false
	}
	pos, ok := ecs.Value[model.Position](m.source, u.Entity)
	if !ok {
		return core.RealmUpdate{}, false
	}
	return core.RealmUpdate{
		EntityID:  realm.EntityID,
		Level:     realm.Level,
		HexCoords: pos.Hex(),
	}, true
}
