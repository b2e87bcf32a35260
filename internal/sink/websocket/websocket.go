package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hexrealm/projector/internal/geo"
	"github.com/hexrealm/projector/pkg/core"
	"github.com/hexrealm/projector/pkg/streaming"
)

// ErrQueueFull is returned when an event could not be queued for sending.
var ErrQueueFull = errors.New("websocket send queue full")

// Config holds WebSocket sink configuration.
type Config struct {
	URL       string
	Secret    string
	Precision uint64
	Logger    *slog.Logger
}

// Sink streams projected events to a scene server. Events are
// fire-and-forget; only opening and closing the session wait for an ack.
type Sink struct {
	conn      *connection
	cfg       Config
	sessionID uuid.UUID

	mu  sync.Mutex // held from numbering to queueing
	seq uint64
}

// New creates a new WebSocket sink.
func New(cfg Config) *Sink {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		conn:      newConnection(logger.With("sink", "websocket")),
		cfg:       cfg,
		sessionID: uuid.New(),
	}
}

// SessionID identifies this sink's session on the server.
func (s *Sink) SessionID() uuid.UUID {
	return s.sessionID
}

// Init connects and opens the session.
func (s *Sink) Init() error {
	if err := s.conn.dial(s.cfg.URL, s.cfg.Secret); err != nil {
		return err
	}

	data, err := s.enqueue(streaming.TypeHello, streaming.HelloPayload{
		SessionID: s.sessionID.String(),
		Precision: s.cfg.Precision,
	})
	if err != nil {
		return err
	}

	s.conn.mu.Lock()
	s.conn.hello = data
	s.conn.mu.Unlock()

	return s.conn.awaitAck(streaming.TypeHello, ackTimeout)
}

// Close ends the session and disconnects.
func (s *Sink) Close() error {
	if s.conn.current() == nil {
		return s.conn.close()
	}
	_, err := s.enqueue(streaming.TypeGoodbye, nil)
	if err == nil {
		err = s.conn.awaitAck(streaming.TypeGoodbye, ackTimeout)
	}
	return errors.Join(err, s.conn.close())
}

// enqueue numbers a message and queues it for the write loop. Both steps
// happen under s.mu so the server sees sequence numbers in increasing order.
func (s *Sink) enqueue(msgType string, payload any) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.marshal(msgType, payload)
	if err != nil {
		return nil, err
	}
	if !s.conn.send(data) {
		return nil, fmt.Errorf("%s: %w", msgType, ErrQueueFull)
	}
	return data, nil
}

// marshal builds a JSON-encoded Envelope with the next sequence number.
// Callers hold s.mu.
func (s *Sink) marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	s.seq++
	env := streaming.Envelope{Type: msgType, Seq: s.seq, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

func (s *Sink) send(msgType string, payload any) error {
	_, err := s.enqueue(msgType, payload)
	return err
}

func worldPoint(hex core.HexPosition) streaming.WorldPoint {
	c, _ := geo.WorldPoint(hex).Coordinates()
	return streaming.WorldPoint{X: c.X, Y: c.Y}
}

func (s *Sink) RecordArmy(e core.ArmyUpdate) error {
	return s.send(streaming.TypeArmyUpdate, streaming.ArmyPayload{ArmyUpdate: e, World: worldPoint(e.HexCoords)})
}

func (s *Sink) RecordStructure(e core.StructureUpdate) error {
	return s.send(streaming.TypeStructureUpdate, streaming.StructurePayload{StructureUpdate: e, World: worldPoint(e.HexCoords)})
}

func (s *Sink) RecordRealm(e core.RealmUpdate) error {
	return s.send(streaming.TypeRealmUpdate, e)
}

func (s *Sink) RecordBattle(e core.BattleUpdate) error {
	p := streaming.BattlePayload{BattleUpdate: e}
	if !e.Deleted {
		w := worldPoint(e.HexCoords)
		p.World = &w
	}
	return s.send(streaming.TypeBattleUpdate, p)
}

func (s *Sink) RecordTile(e core.TileUpdate) error {
	return s.send(streaming.TypeTileUpdate, e)
}

func (s *Sink) RecordBuilding(e core.BuildingUpdate) error {
	return s.send(streaming.TypeBuildingUpdate, e)
}
