package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hexrealm/projector/internal/dispatcher"
	"github.com/hexrealm/projector/internal/ecs"
	"github.com/hexrealm/projector/internal/model"
	"github.com/hexrealm/projector/internal/parser"
	"github.com/hexrealm/projector/internal/projection"
	"github.com/hexrealm/projector/internal/sink"
	"github.com/hexrealm/projector/pkg/core"
)

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Store       *ecs.Store
	Projections *projection.Manager
	Parser      *parser.Parser
	Logger      *slog.Logger
}

// Stats counts the outcome of one Ingest call.
type Stats struct {
	Applied  int `json:"applied"`
	Rejected int `json:"rejected"`
}

// Manager connects projections to a sink and feeds the store.
type Manager struct {
	deps Dependencies
	sink sink.Sink

	mu      sync.Mutex
	unsubs  []dispatcher.Unsubscribe
	hexes   map[core.HexPosition]dispatcher.Unsubscribe
	started bool
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, s sink.Sink) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		deps:  deps,
		sink:  s,
		hexes: make(map[core.HexPosition]dispatcher.Unsubscribe),
	}
}

// Start subscribes the army, structure, realm, battle and tile projections
// to the sink. Calling Start twice is a no-op.
func (m *Manager) Start(opts ...projection.SubscribeOption) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	p := m.deps.Projections
	m.unsubs = append(m.unsubs,
		p.Army().OnUpdate(record(m, "army", m.sink.RecordArmy), opts...),
		p.Structure().OnUpdate(record(m, "structure", m.sink.RecordStructure), opts...),
		p.Realm().OnUpdate(record(m, "realm", m.sink.RecordRealm), opts...),
		p.Battle().OnUpdate(record(m, "battle", m.sink.RecordBattle), opts...),
		p.Tile().OnUpdate(record(m, "tile", m.sink.RecordTile), opts...),
	)
	m.deps.Logger.Info("Projections subscribed", "count", len(m.unsubs))
}

// WatchHex subscribes the buildings of one outer hex to the sink. Watching
// the same hex twice is a no-op.
func (m *Manager) WatchHex(hex core.HexPosition, opts ...projection.SubscribeOption) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hexes[hex]; ok {
		return
	}
	m.hexes[hex] = m.deps.Projections.Buildings().SubscribeToHexUpdates(hex, record(m, "building", m.sink.RecordBuilding), opts...)
	m.deps.Logger.Debug("Watching hex buildings", "col", hex.Col, "row", hex.Row)
}

// WatchedHexes returns the number of hexes with a building subscription.
func (m *Manager) WatchedHexes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hexes)
}

// Stop unsubscribes everything. Callbacks already running complete.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, unsub := range m.unsubs {
		unsub()
	}
	for hex, unsub := range m.hexes {
		unsub()
		delete(m.hexes, hex)
	}
	m.unsubs = nil
	m.started = false
}

func record[E any](m *Manager, concept string, fn func(E) error) func(E) {
	return func(e E) {
		if err := fn(e); err != nil {
			m.deps.Logger.Error("Failed to record event", "concept", concept, "error", err)
		}
	}
}

// Apply writes one operation to the store. A building placed on a hex not
// yet watched gets a subscription first, so its own placement is delivered.
func (m *Manager) Apply(op parser.Op) {
	switch op.Type {
	case parser.OpSet:
		if b, ok := op.Component.(model.Building); ok {
			m.WatchHex(core.HexPosition{Col: b.OuterCol, Row: b.OuterRow})
		}
		m.deps.Store.Set(op.Entity, op.Component)
	case parser.OpRemove:
		m.deps.Store.Remove(op.Kind, op.Entity)
	}
}

// Ingest decodes r and applies every well-formed operation. Malformed lines
// are logged and counted; reading stops at the end of r or when ctx is done.
func (m *Manager) Ingest(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats
	dec := m.deps.Parser.NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		op, err := dec.Next()
		switch {
		case errors.Is(err, io.EOF):
			m.deps.Logger.InfoContext(ctx, "Feed ingested", "applied", stats.Applied, "rejected", stats.Rejected)
			return stats, nil
		case errors.Is(err, parser.ErrInvalidOp), errors.Is(err, parser.ErrUnknownKind):
			stats.Rejected++
			m.deps.Logger.WarnContext(ctx, "Skipping feed line", "line", op.Line, "error", err)
			continue
		case err != nil:
			return stats, fmt.Errorf("ingest: %w", err)
		}
		m.Apply(op)
		stats.Applied++
	}
}
