package streaming

import (
	"encoding/json"

	"github.com/hexrealm/projector/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeHello           = "hello"
	TypeGoodbye         = "goodbye"
	TypeArmyUpdate      = "army_update"
	TypeStructureUpdate = "structure_update"
	TypeRealmUpdate     = "realm_update"
	TypeBattleUpdate    = "battle_update"
	TypeTileUpdate      = "tile_update"
	TypeBuildingUpdate  = "building_update"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// HelloPayload opens a session. It is replayed after every reconnect.
type HelloPayload struct {
	SessionID string `json:"sessionId"`
	Precision uint64 `json:"precision"`
}

// WorldPoint is a hex centre on the rendering plane.
type WorldPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ArmyPayload carries an army update and where to draw it.
type ArmyPayload struct {
	core.ArmyUpdate
	World WorldPoint `json:"world"`
}

// StructurePayload carries a structure update and where to draw it.
type StructurePayload struct {
	core.StructureUpdate
	World WorldPoint `json:"world"`
}

// BattlePayload carries a battle update. World is omitted for tombstones.
type BattlePayload struct {
	core.BattleUpdate
	World *WorldPoint `json:"world,omitempty"`
}
