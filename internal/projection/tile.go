package projection

import (
	"github.com/hexrealm/projector/internal/ecs"
	"github.com/hexrealm/projector/internal/model"
	"github.com/hexrealm/projector/pkg/core"
)

// Tile projects explored tiles. A removal un-explores the tile.
func (m *Manager) Tile() Projection[core.TileUpdate] {
	return Projection[core.TileUpdate]{
		m:       m,
		concept: "tile",
		replay:  ecs.ReplayExisting,
		watch: func(mode ecs.ReplayMode) ecs.Stream {
			return m.source.WatchComponents(mode, model.KindTile)
		},
		derive: deriveTile,
	}
}

func deriveTile(u ecs.Update) (core.TileUpdate, bool) {
	tile, ok := ecs.As[model.Tile](u.Value)
	if !ok {
		if tile, ok = ecs.As[model.Tile](u.Previous); !ok {
			return core.TileUpdate{}, false
		}
	}
	return core.TileUpdate{
		HexCoords:      tile.Hex(),
		RemoveExplored: u.Removed(),
	}, true
}
