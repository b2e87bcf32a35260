package projection

import (
	"github.com/hexrealm/projector/internal/ecs"
	"github.com/hexrealm/projector/internal/model"
	"github.com/hexrealm/projector/internal/util"
	"github.com/hexrealm/projector/pkg/core"
)

// Battle projects Battle changes. Removing the Battle component emits a
// tombstone: Deleted is set and only EntityID is meaningful.
func (m *Manager) Battle() Projection[core.BattleUpdate] {
	return Projection[core.BattleUpdate]{
		m:       m,
		concept: "battle",
		replay:  ecs.ReplayExisting,
		watch: func(mode ecs.ReplayMode) ecs.Stream {
			return m.source.WatchComponents(mode, model.KindBattle)
		},
		derive: m.deriveBattle,
	}
}

func (m *Manager) deriveBattle(u ecs.Update) (core.BattleUpdate, bool) {
	if u.Removed() {
		prev, ok := ecs.As[model.Battle](u.Previous)
		if !ok {
			m.dispatcher.Logger().Error("battle removed without previous value", "entity", u.Entity)
			return core.BattleUpdate{}, false
		}
		return core.BattleUpdate{EntityID: prev.EntityID, Deleted: true}, true
	}

	battle, ok := ecs.As[model.Battle](u.Value)
	if !ok {
		return core.BattleUpdate{}, false
	}
	pos, ok := ecs.Value[model.Position](m.source, u.Entity)
	if !ok {
		return core.BattleUpdate{}, false
	}

	now := float64(m.now().UnixNano()) / 1e9
	return core.BattleUpdate{
		EntityID:  battle.EntityID,
		HexCoords: pos.Hex(),
		IsEmpty: util.BelowOneUnit(battle.AttackArmyHealth.Current, m.precision) &&
			util.BelowOneUnit(battle.DefenceArmyHealth.Current, m.precision),
		IsSiege: float64(battle.StartAt) > now,
	}, true
}
