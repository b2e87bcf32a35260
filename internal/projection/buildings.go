package projection

import (
	"fmt"

	"github.com/hexrealm/projector/internal/dispatcher"
	"github.com/hexrealm/projector/internal/ecs"
	"github.com/hexrealm/projector/internal/model"
	"github.com/hexrealm/projector/pkg/core"
)

// BuildingsProjection scopes building changes to one outer hex at a time.
type BuildingsProjection struct {
	m *Manager
}

// Buildings returns the hex-scoped building projection.
func (m *Manager) Buildings() BuildingsProjection {
	return BuildingsProjection{m: m}
}

// AtHex returns the projection of buildings inside one outer hex. Live
// changes only unless WithReplay says otherwise.
func (b BuildingsProjection) AtHex(hex core.HexPosition) Projection[core.BuildingUpdate] {
	m := b.m
	return Projection[core.BuildingUpdate]{
		m:       m,
		concept: fmt.Sprintf("buildings(%d,%d)", hex.Col, hex.Row),
		replay:  ecs.ChangesOnly,
		accept:  []ecs.Kind{model.KindBuilding},
		watch: func(mode ecs.ReplayMode) ecs.Stream {
			return m.source.WatchQuery(mode, ecs.HasValue(model.KindBuilding, ecs.Fields{
				"outer_col": hex.Col,
				"outer_row": hex.Row,
			}))
		},
		derive: func(u ecs.Update) (core.BuildingUpdate, bool) {
			return deriveBuilding(hex, u)
		},
	}
}

// SubscribeToHexUpdates registers cb for building changes inside hex.
func (b BuildingsProjection) SubscribeToHexUpdates(hex core.HexPosition, cb func(core.BuildingUpdate), opts ...SubscribeOption) dispatcher.Unsubscribe {
	return b.AtHex(hex).OnUpdate(cb, opts...)
}

func deriveBuilding(hex core.HexPosition, u ecs.Update) (core.BuildingUpdate, bool) {
	building, ok := ecs.As[model.Building](u.Value)
	if !ok || building.OuterCol != hex.Col || building.OuterRow != hex.Row {
		return core.BuildingUpdate{}, false
	}
	return core.BuildingUpdate{
		OuterCoords:  hex,
		BuildingType: building.Category,
		InnerCol:     building.InnerCol,
		InnerRow:     building.InnerRow,
		Paused:       building.Paused,
	}, true
}
