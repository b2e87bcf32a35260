// Package projection turns component store changes into render-facing domain
// events, one projection per domain concept.
package projection

import (
	"context"
	"time"

	"github.com/hexrealm/projector/internal/dispatcher"
	"github.com/hexrealm/projector/internal/ecs"
	"github.com/hexrealm/projector/internal/model"
	"github.com/hexrealm/projector/internal/progress"
	"github.com/hexrealm/projector/pkg/core"
)

// Manager exposes the projections over one component store.
type Manager struct {
	source     ecs.Source
	dispatcher *dispatcher.Dispatcher
	aggregator *progress.Aggregator
	precision  uint64
	stageable  map[core.StructureType]bool
	now        func() time.Time
	dispatch   []dispatcher.Option
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for siege detection.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithStageable sets the structure categories that report construction stages.
func WithStageable(types ...core.StructureType) Option {
	return func(m *Manager) {
		m.stageable = make(map[core.StructureType]bool, len(types))
		for _, t := range types {
			m.stageable[t] = true
		}
	}
}

// WithDispatchOptions applies dispatcher options to every subscription.
func WithDispatchOptions(opts ...dispatcher.Option) Option {
	return func(m *Manager) {
		m.dispatch = append(m.dispatch, opts...)
	}
}

// NewManager creates a Manager. The aggregator's precision is also used for
// health display values.
func NewManager(source ecs.Source, d *dispatcher.Dispatcher, agg *progress.Aggregator, opts ...Option) *Manager {
	m := &Manager{
		source:     source,
		dispatcher: d,
		aggregator: agg,
		precision:  agg.Config().Precision,
		stageable:  map[core.StructureType]bool{core.StructureHyperstructure: true},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SubscribeOption configures a single OnUpdate call.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	replay   ecs.ReplayMode
	dispatch []dispatcher.Option
}

// WithReplay selects whether current state is replayed before live changes.
func WithReplay(mode ecs.ReplayMode) SubscribeOption {
	return func(c *subscribeConfig) {
		c.replay = mode
	}
}

// WithOptions passes dispatcher options (Buffered, Blocking, Logged) through.
func WithOptions(opts ...dispatcher.Option) SubscribeOption {
	return func(c *subscribeConfig) {
		c.dispatch = append(c.dispatch, opts...)
	}
}

// Projection is one domain concept's view of the store.
type Projection[E any] struct {
	m       *Manager
	concept string
	replay  ecs.ReplayMode
	accept  []ecs.Kind
	watch   func(mode ecs.ReplayMode) ecs.Stream
	derive  dispatcher.DeriveFunc[E]
}

// Concept returns the projection's name.
func (p Projection[E]) Concept() string {
	return p.concept
}

// OnUpdate registers cb for every event the projection derives until the
// returned Unsubscribe is called.
func (p Projection[E]) OnUpdate(cb func(E), opts ...SubscribeOption) dispatcher.Unsubscribe {
	cfg := &subscribeConfig{replay: p.replay}
	for _, opt := range opts {
		opt(cfg)
	}
	return dispatcher.Subscribe(p.m.dispatcher, p.concept, p.watch(cfg.replay), p.derive, cb, p.options(cfg.dispatch)...)
}

// Pump runs the projection over stream on the calling goroutine until the
// stream closes or ctx is done.
func (p Projection[E]) Pump(ctx context.Context, stream ecs.Stream, cb func(E)) error {
	return dispatcher.Pump(ctx, p.m.dispatcher, p.concept, stream, p.derive, cb, p.options(nil)...)
}

// Derive builds the event for a single update.
func (p Projection[E]) Derive(u ecs.Update) (E, bool) {
	return p.derive(u)
}

func (p Projection[E]) options(extra []dispatcher.Option) []dispatcher.Option {
	opts := make([]dispatcher.Option, 0, len(p.m.dispatch)+len(extra)+1)
	opts = append(opts, p.m.dispatch...)
	opts = append(opts, extra...)
	if len(p.accept) > 0 {
		opts = append(opts, dispatcher.Accept(p.accept...))
	}
	return opts
}

func (m *Manager) owner(e ecs.Entity) core.Address {
	if o, ok := ecs.Value[model.Owner](m.source, e); ok && o.Address != "" {
		return o.Address
	}
	return core.ZeroAddress
}
