// pkg/core/events.go
package core

// ArmyUpdate is emitted when an army's position, health or army record changes.
type ArmyUpdate struct {
	EntityID      ID          `json:"entityId"`
	HexCoords     HexPosition `json:"hexCoords"`
	BattleID      ID          `json:"battleId"`
	IsDefender    bool        `json:"isDefender"`
	CurrentHealth uint64      `json:"currentHealth"` // display units
	Order         uint8       `json:"order"`
	Owner         Address     `json:"owner"`
}

// ResourceProgress is the contribution state of one resource toward an objective.
type ResourceProgress struct {
	Resource   ResourceID `json:"resource"`
	Amount     float64    `json:"amount"`     // display units
	Percentage int        `json:"percentage"` // floored, 0-100+
	CostNeeded float64    `json:"costNeeded"`
	Remaining  uint64     `json:"remaining"` // fixed point still required
}

// StructureUpdate is emitted when a structure is revealed, moves, or changes.
// Progress and Completion are only populated for stageable categories.
type StructureUpdate struct {
	EntityID      ID                 `json:"entityId"`
	HexCoords     HexPosition        `json:"hexCoords"`
	StructureType StructureType      `json:"structureType"`
	Stage         Stage              `json:"stage"`
	Level         RealmLevel         `json:"level"`
	Owner         Address            `json:"owner"`
	Completion    float64            `json:"completion"`
	Progress      []ResourceProgress `json:"progress,omitempty"`
}

// RealmUpdate is emitted when a realm's record or position changes.
type RealmUpdate struct {
	EntityID  ID          `json:"entityId"`
	Level     RealmLevel  `json:"level"`
	HexCoords HexPosition `json:"hexCoords"`
}

// BattleUpdate is emitted when a battle changes. When Deleted is true the
// battle was removed and HexCoords carries no meaning.
type BattleUpdate struct {
	EntityID  ID          `json:"entityId"`
	HexCoords HexPosition `json:"hexCoords"`
	IsEmpty   bool        `json:"isEmpty"`
	Deleted   bool        `json:"deleted"`
	IsSiege   bool        `json:"isSiege"`
}

// TileUpdate is emitted when a tile is explored or un-explored.
type TileUpdate struct {
	HexCoords      HexPosition `json:"hexCoords"`
	RemoveExplored bool        `json:"removeExplored"`
}

// BuildingUpdate is emitted for building changes inside one outer hex.
type BuildingUpdate struct {
	OuterCoords  HexPosition `json:"outerCoords"`
	BuildingType string      `json:"buildingType"`
	InnerCol     uint32      `json:"innerCol"`
	InnerRow     uint32      `json:"innerRow"`
	Paused       bool        `json:"paused"`
}
