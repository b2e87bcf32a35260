// pkg/core/types.go
package core

import "fmt"

// ID is a domain entity identifier as carried inside component payloads
// (entity_id, battle_id, entity_owner_id, ...).
type ID uint32

// ResourceID identifies a resource type.
type ResourceID uint8

// HexPosition is a hex cell in contract coordinates.
type HexPosition struct {
	Col uint32 `json:"col"`
	Row uint32 `json:"row"`
}

// Address is a hex-encoded account address.
type Address string

// ZeroAddress is reported when an entity has no Owner component.
const ZeroAddress Address = "0x0"

// StructureType is the category of a Structure component.
type StructureType int

const (
	StructureNone StructureType = iota
	StructureRealm
	StructureHyperstructure
	StructureBank
	StructureFragmentMine
	StructureSettlement
)

var structureTypeNames = map[StructureType]string{
	StructureNone:           "None",
	StructureRealm:          "Realm",
	StructureHyperstructure: "Hyperstructure",
	StructureBank:           "Bank",
	StructureFragmentMine:   "FragmentMine",
	StructureSettlement:     "Settlement",
}

func (s StructureType) String() string {
	if name, ok := structureTypeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("StructureType(%d)", int(s))
}

// ParseStructureType maps a category name to its StructureType.
// Unknown names map to StructureNone.
func ParseStructureType(name string) StructureType {
	for t, n := range structureTypeNames {
		if n == name {
			return t
		}
	}
	return StructureNone
}

// RealmLevel is the upgrade level of a realm.
type RealmLevel uint8

const (
	RealmSettlement RealmLevel = iota
	RealmCity
	RealmKingdom
	RealmEmpire
)

// Stage is the discrete completion bucket of a constructible objective.
type Stage int

const (
	Stage1 Stage = iota + 1
	Stage2
	Stage3
)

// BattleSide is the side an army fights on.
type BattleSide string

const (
	BattleSideNone    BattleSide = "None"
	BattleSideAttack  BattleSide = "Attack"
	BattleSideDefence BattleSide = "Defence"
)
