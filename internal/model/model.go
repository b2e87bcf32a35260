package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hexrealm/projector/internal/ecs"
	"github.com/hexrealm/projector/pkg/core"
)

//////////////////////////
// COMPONENT STRUCTURES //
//////////////////////////

// Component kinds. The set is closed: every record type below registers
// exactly one kind and the store holds nothing else.
const (
	KindPosition    ecs.Kind = "Position"
	KindHealth      ecs.Kind = "Health"
	KindOwner       ecs.Kind = "Owner"
	KindRealm       ecs.Kind = "Realm"
	KindArmy        ecs.Kind = "Army"
	KindStructure   ecs.Kind = "Structure"
	KindBattle      ecs.Kind = "Battle"
	KindTile        ecs.Kind = "Tile"
	KindBuilding    ecs.Kind = "Building"
	KindProgress    ecs.Kind = "Progress"
	KindEntityOwner ecs.Kind = "EntityOwner"
	KindProtectee   ecs.Kind = "Protectee"
)

// Kinds lists every registered component kind.
var Kinds = []ecs.Kind{
	KindPosition,
	KindHealth,
	KindOwner,
	KindRealm,
	KindArmy,
	KindStructure,
	KindBattle,
	KindTile,
	KindBuilding,
	KindProgress,
	KindEntityOwner,
	KindProtectee,
}

var decoders = map[ecs.Kind]func(json.RawMessage) (ecs.Component, error){
	KindPosition:    decodeAs[Position],
	KindHealth:      decodeAs[Health],
	KindOwner:       decodeAs[Owner],
	KindRealm:       decodeAs[Realm],
	KindArmy:        decodeAs[Army],
	KindStructure:   decodeAs[Structure],
	KindBattle:      decodeAs[Battle],
	KindTile:        decodeAs[Tile],
	KindBuilding:    decodeAs[Building],
	KindProgress:    decodeAs[Progress],
	KindEntityOwner: decodeAs[EntityOwner],
	KindProtectee:   decodeAs[Protectee],
}

// ErrUnknownKind is returned when decoding a kind outside the registry.
var ErrUnknownKind = errors.New("unknown component kind")

// Registered reports whether kind belongs to the registry.
func Registered(kind ecs.Kind) bool {
	_, ok := decoders[kind]
	return ok
}

// Decode builds a component record of the given kind from its JSON form.
func Decode(kind ecs.Kind, raw json.RawMessage) (ecs.Component, error) {
	dec, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return dec(raw)
}

func decodeAs[T ecs.Component](raw json.RawMessage) (ecs.Component, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", v.Kind(), err)
	}
	return v, nil
}

// Position places an entity on a hex in contract coordinates.
type Position struct {
	EntityID core.ID `json:"entity_id"`
	X        uint32  `json:"x"`
	Y        uint32  `json:"y"`
}

func (Position) Kind() ecs.Kind { return KindPosition }

func (p Position) Field(name string) (any, bool) {
	switch name {
	case "entity_id":
		return uint64(p.EntityID), true
	case "x":
		return uint64(p.X), true
	case "y":
		return uint64(p.Y), true
	}
	return nil, false
}

// Hex returns the position as a hex cell.
func (p Position) Hex() core.HexPosition {
	return core.HexPosition{Col: p.X, Row: p.Y}
}

// Health is stored in fixed point, scaled by the resource precision.
type Health struct {
	EntityID core.ID `json:"entity_id"`
	Current  uint64  `json:"current"`
	Lifetime uint64  `json:"lifetime"`
}

func (Health) Kind() ecs.Kind { return KindHealth }

func (h Health) Field(name string) (any, bool) {
	switch name {
	case "entity_id":
		return uint64(h.EntityID), true
	case "current":
		return h.Current, true
	case "lifetime":
		return h.Lifetime, true
	}
	return nil, false
}

// Owner binds an entity to an account address.
type Owner struct {
	EntityID core.ID      `json:"entity_id"`
	Address  core.Address `json:"address"`
}

func (Owner) Kind() ecs.Kind { return KindOwner }

func (o Owner) Field(name string) (any, bool) {
	switch name {
	case "entity_id":
		return uint64(o.EntityID), true
	case "address":
		return string(o.Address), true
	}
	return nil, false
}

// Realm is attached to realm structures.
type Realm struct {
	EntityID core.ID         `json:"entity_id"`
	RealmID  core.ID         `json:"realm_id"`
	Order    uint8           `json:"order"`
	Level    core.RealmLevel `json:"level"`
}

func (Realm) Kind() ecs.Kind { return KindRealm }

func (r Realm) Field(name string) (any, bool) {
	switch name {
	case "entity_id":
		return uint64(r.EntityID), true
	case "realm_id":
		return uint64(r.RealmID), true
	case "order":
		return uint64(r.Order), true
	case "level":
		return uint64(r.Level), true
	}
	return nil, false
}

// Army marks an entity as an army.
type Army struct {
	EntityID   core.ID         `json:"entity_id"`
	BattleID   core.ID         `json:"battle_id"`
	BattleSide core.BattleSide `json:"battle_side"`
}

func (Army) Kind() ecs.Kind { return KindArmy }

func (a Army) Field(name string) (any, bool) {
	switch name {
	case "entity_id":
		return uint64(a.EntityID), true
	case "battle_id":
		return uint64(a.BattleID), true
	case "battle_side":
		return string(a.BattleSide), true
	}
	return nil, false
}

// Structure marks an entity as a structure of some category.
type Structure struct {
	EntityID core.ID `json:"entity_id"`
	Category string  `json:"category"`
}

func (Structure) Kind() ecs.Kind { return KindStructure }

func (s Structure) Field(name string) (any, bool) {
	switch name {
	case "entity_id":
		return uint64(s.EntityID), true
	case "category":
		return s.Category, true
	}
	return nil, false
}

// StructureType resolves the category name.
func (s Structure) StructureType() core.StructureType {
	return core.ParseStructureType(s.Category)
}

// BattleHealth is a combatant health pool in fixed point.
type BattleHealth struct {
	Current  uint64 `json:"current"`
	Lifetime uint64 `json:"lifetime"`
}

// Battle is attached to battle entities.
type Battle struct {
	EntityID          core.ID      `json:"entity_id"`
	AttackArmyHealth  BattleHealth `json:"attack_army_health"`
	DefenceArmyHealth BattleHealth `json:"defence_army_health"`
	StartAt           uint64       `json:"start_at"` // unix seconds
}

func (Battle) Kind() ecs.Kind { return KindBattle }

func (b Battle) Field(name string) (any, bool) {
	switch name {
	case "entity_id":
		return uint64(b.EntityID), true
	case "start_at":
		return b.StartAt, true
	}
	return nil, false
}

// Tile records an explored hex.
type Tile struct {
	Col        uint32  `json:"col"`
	Row        uint32  `json:"row"`
	ExplorerID core.ID `json:"explored_by_id"`
	ExploredAt uint64  `json:"explored_at"`
	Biome      string  `json:"biome"`
}

func (Tile) Kind() ecs.Kind { return KindTile }

func (t Tile) Field(name string) (any, bool) {
	switch name {
	case "col":
		return uint64(t.Col), true
	case "row":
		return uint64(t.Row), true
	case "explored_by_id":
		return uint64(t.ExplorerID), true
	case "biome":
		return t.Biome, true
	}
	return nil, false
}

// Hex returns the tile's hex cell.
func (t Tile) Hex() core.HexPosition {
	return core.HexPosition{Col: t.Col, Row: t.Row}
}

// Building occupies an inner cell of an outer hex.
type Building struct {
	OuterCol      uint32  `json:"outer_col"`
	OuterRow      uint32  `json:"outer_row"`
	InnerCol      uint32  `json:"inner_col"`
	InnerRow      uint32  `json:"inner_row"`
	Category      string  `json:"category"`
	Paused        bool    `json:"paused"`
	OuterEntityID core.ID `json:"outer_entity_id"`
}

func (Building) Kind() ecs.Kind { return KindBuilding }

func (b Building) Field(name string) (any, bool) {
	switch name {
	case "outer_col":
		return uint64(b.OuterCol), true
	case "outer_row":
		return uint64(b.OuterRow), true
	case "inner_col":
		return uint64(b.InnerCol), true
	case "inner_row":
		return uint64(b.InnerRow), true
	case "category":
		return b.Category, true
	case "paused":
		return b.Paused, true
	case "outer_entity_id":
		return uint64(b.OuterEntityID), true
	}
	return nil, false
}

// Progress is one resource's contribution toward a hyperstructure, in fixed point.
type Progress struct {
	HyperstructureEntityID core.ID         `json:"hyperstructure_entity_id"`
	ResourceType           core.ResourceID `json:"resource_type"`
	Amount                 uint64          `json:"amount"`
}

func (Progress) Kind() ecs.Kind { return KindProgress }

func (p Progress) Field(name string) (any, bool) {
	switch name {
	case "hyperstructure_entity_id":
		return uint64(p.HyperstructureEntityID), true
	case "resource_type":
		return uint64(p.ResourceType), true
	case "amount":
		return p.Amount, true
	}
	return nil, false
}

// EntityOwner points an entity at the entity that owns it.
type EntityOwner struct {
	EntityID      core.ID `json:"entity_id"`
	EntityOwnerID core.ID `json:"entity_owner_id"`
}

func (EntityOwner) Kind() ecs.Kind { return KindEntityOwner }

func (o EntityOwner) Field(name string) (any, bool) {
	switch name {
	case "entity_id":
		return uint64(o.EntityID), true
	case "entity_owner_id":
		return uint64(o.EntityOwnerID), true
	}
	return nil, false
}

// Protectee marks an army as escorting another entity.
type Protectee struct {
	ArmyID      core.ID `json:"army_id"`
	ProtecteeID core.ID `json:"protectee_id"`
}

func (Protectee) Kind() ecs.Kind { return KindProtectee }

func (p Protectee) Field(name string) (any, bool) {
	switch name {
	case "army_id":
		return uint64(p.ArmyID), true
	case "protectee_id":
		return uint64(p.ProtecteeID), true
	}
	return nil, false
}
