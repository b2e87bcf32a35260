package projection

import (
	"github.com/hexrealm/projector/internal/ecs"
	"github.com/hexrealm/projector/internal/model"
	"github.com/hexrealm/projector/internal/util"
	"github.com/hexrealm/projector/pkg/core"
)

// Army projects entities carrying Army, Position, EntityOwner and Health.
// Armies escorting another entity are never emitted.
func (m *Manager) Army() Projection[core.ArmyUpdate] {
	return Projection[core.ArmyUpdate]{
		m:       m,
		concept: "army",
		replay:  ecs.ReplayExisting,
		accept:  []ecs.Kind{model.KindArmy, model.KindPosition, model.KindHealth},
		watch: func(mode ecs.ReplayMode) ecs.Stream {
			return m.source.WatchQuery(mode,
				ecs.Has(model.KindArmy),
				ecs.Has(model.KindPosition),
				ecs.Has(model.KindEntityOwner),
				ecs.Has(model.KindHealth),
			)
		},
		derive: m.deriveArmy,
	}
}

func (m *Manager) deriveArmy(u ecs.Update) (core.ArmyUpdate, bool) {
	army, ok := ecs.Value[model.Army](m.source, u.Entity)
	if !ok {
		return core.ArmyUpdate{}, false
	}
	pos, ok := ecs.Value[model.Position](m.source, u.Entity)
	if !ok {
		return core.ArmyUpdate{}, false
	}
	health, ok := ecs.Value[model.Health](m.source, u.Entity)
	if !ok {
		return core.ArmyUpdate{}, false
	}
	if _, escorting := ecs.Value[model.Protectee](m.source, u.Entity); escorting {
		return core.ArmyUpdate{}, false
	}

	eo, ok := ecs.Value[model.EntityOwner](m.source, u.Entity)
	if !ok {
		return core.ArmyUpdate{}, false
	}
	ownerKey := ecs.KeyOf(eo.EntityOwnerID)
	realm, ok := ecs.Value[model.Realm](m.source, ownerKey)
	if !ok {
		return core.ArmyUpdate{}, false
	}

	return core.ArmyUpdate{
		EntityID:      army.EntityID,
		HexCoords:     pos.Hex(),
		BattleID:      army.BattleID,
		IsDefender:    army.BattleSide == core.BattleSideDefence,
		CurrentHealth: util.DisplayUnits(health.Current, m.precision),
		Order:         realm.Order,
		Owner:         m.owner(ownerKey),
	}, true
}
