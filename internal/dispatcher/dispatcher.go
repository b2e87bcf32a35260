// Package dispatcher runs projections: it drains a change stream, derives a
// domain event from each accepted update and hands it to a callback.
package dispatcher

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/hexrealm/projector/internal/channel"
	"github.com/hexrealm/projector/internal/ecs"
)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// DeriveFunc joins whatever else an update needs and builds the event.
// Returning false skips the update silently.
type DeriveFunc[E any] func(ecs.Update) (E, bool)

// Unsubscribe stops a subscription. It does not wait: a callback already
// running completes, no further callbacks are made.
type Unsubscribe func()

// Option configures a subscription.
type Option func(*config)

type config struct {
	accept     []ecs.Kind
	bufferSize int
	blocking   bool
	logged     bool
}

// Accept restricts the subscription to updates of the given kinds.
func Accept(kinds ...ecs.Kind) Option {
	return func(c *config) {
		c.accept = append(c.accept, kinds...)
	}
}

// Buffered decouples the callback from the stream with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered subscription block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the subscription.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Info describes a live subscription.
type Info struct {
	ID      uuid.UUID
	Concept string
	Since   time.Time
}

type subscription struct {
	Info
	stream  ecs.Stream
	pending func() int // events buffered for the callback goroutine
	stopped atomic.Bool
	once    sync.Once
}

func (s *subscription) waiting() int {
	n := s.stream.Len()
	if s.pending != nil {
		n += s.pending()
	}
	return n
}

// Dispatcher owns the running projection subscriptions.
type Dispatcher struct {
	logger Logger

	metrics instruments

	mu   sync.RWMutex
	subs map[uuid.UUID]*subscription
	wg   sync.WaitGroup
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	return NewWithMeter(logger, otel.GetMeterProvider())
}

// NewWithMeter creates a Dispatcher recording its metrics through mp.
func NewWithMeter(logger Logger, mp metric.MeterProvider) (*Dispatcher, error) {
	d := &Dispatcher{
		logger: logger,
		subs:   make(map[uuid.UUID]*subscription),
	}

	m, err := newInstruments(mp.Meter(instrumentationName), d.observe)
	if err != nil {
		return nil, err
	}
	d.metrics = m

	return d, nil
}

// Logger returns the dispatcher's logger.
func (d *Dispatcher) Logger() Logger {
	return d.logger
}

// Subscribe starts a goroutine that drains stream, derives an event from each
// accepted update and passes it to emit. Updates are handled one at a time in
// stream order. The subscription ends when the stream closes or when the
// returned Unsubscribe is called.
func Subscribe[E any](d *Dispatcher, concept string, stream ecs.Stream, derive DeriveFunc[E], emit func(E), opts ...Option) Unsubscribe {
	cfg := newConfig(opts)
	sub := &subscription{
		Info:   Info{ID: uuid.New(), Concept: concept, Since: time.Now()},
		stream: stream,
	}

	sink, closeSink := withBuffer(d, sub, cfg, emit)

	d.mu.Lock()
	d.subs[sub.ID] = sub
	d.mu.Unlock()

	if cfg.logged {
		d.logger.Debug("subscribed", "concept", concept, "id", sub.ID)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.remove(sub)
		defer closeSink()
		for u := range stream.Receive() {
			if sub.stopped.Load() {
				return
			}
			handle(d, sub, cfg, u, derive, sink)
		}
	}()

	return func() {
		sub.once.Do(func() {
			sub.stopped.Store(true)
			stream.Close()
			d.remove(sub)
			if cfg.logged {
				d.logger.Debug("unsubscribed", "concept", concept, "id", sub.ID)
			}
		})
	}
}

// Pump runs a subscription on the calling goroutine until the stream closes
// or ctx is done. Buffering options are ignored.
func Pump[E any](ctx context.Context, d *Dispatcher, concept string, stream ecs.Stream, derive DeriveFunc[E], emit func(E), opts ...Option) error {
	cfg := newConfig(opts)
	cfg.bufferSize = 0
	sub := &subscription{Info: Info{ID: uuid.New(), Concept: concept, Since: time.Now()}, stream: stream}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-stream.Receive():
			if !ok {
				return nil
			}
			handle(d, sub, cfg, u, derive, direct(emit))
		}
	}
}

func newConfig(opts []Option) *config {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func handle[E any](d *Dispatcher, sub *subscription, cfg *config, u ecs.Update, derive DeriveFunc[E], emit func(E) bool) {
	attrs := conceptAttr(sub.Concept)

	if len(cfg.accept) > 0 && !slices.Contains(cfg.accept, u.Kind) {
		d.metrics.skipped.Add(context.Background(), 1, attrs)
		return
	}

	start := time.Now()
	event, ok := derive(u)
	if !ok {
		d.metrics.skipped.Add(context.Background(), 1, attrs)
		if cfg.logged {
			d.logger.Debug("update skipped", "concept", sub.Concept, "entity", u.Entity, "kind", u.Kind)
		}
		return
	}

	if sub.stopped.Load() || !emit(event) {
		return
	}
	d.metrics.emitted.Add(context.Background(), 1, attrs)
	if cfg.logged {
		d.logger.Debug("event emitted", "concept", sub.Concept, "entity", u.Entity, "kind", u.Kind, "duration", time.Since(start))
	}
}

func direct[E any](emit func(E)) func(E) bool {
	return func(e E) bool {
		emit(e)
		return true
	}
}

// withBuffer moves callbacks onto their own goroutine behind a queue of the
// configured size. The returned close func must be called once the stream
// is drained.
func withBuffer[E any](d *Dispatcher, sub *subscription, cfg *config, emit func(E)) (func(E) bool, func()) {
	if cfg.bufferSize <= 0 {
		return direct(emit), func() {}
	}

	buffer := channel.New[E](cfg.bufferSize)
	sub.pending = buffer.Len
	attrs := conceptAttr(sub.Concept)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range buffer.Receive() {
			if sub.stopped.Load() {
				continue
			}
			emit(e)
		}
	}()

	if cfg.blocking {
		return func(e E) bool {
			buffer.Send(e)
			return true
		}, buffer.Close
	}

	return func(e E) bool {
		if buffer.TrySend(e) {
			return true
		}
		d.metrics.dropped.Add(context.Background(), 1, attrs)
		if cfg.logged {
			d.logger.Error("queue full, event dropped", "concept", sub.Concept)
		}
		return false
	}, buffer.Close
}

func (d *Dispatcher) remove(sub *subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subs, sub.ID)
}

// Subscriptions lists the live subscriptions.
func (d *Dispatcher) Subscriptions() []Info {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Info, 0, len(d.subs))
	for _, s := range d.subs {
		out = append(out, s.Info)
	}
	slices.SortFunc(out, func(a, b Info) int {
		return a.Since.Compare(b.Since)
	})
	return out
}

// observe reports live subscriptions and their backlog per concept.
func (d *Dispatcher) observe(_ context.Context, o metric.Observer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	active := map[string]int64{}
	backlog := map[string]int64{}
	for _, s := range d.subs {
		active[s.Concept]++
		backlog[s.Concept] += int64(s.waiting())
	}
	for c, n := range active {
		o.ObserveInt64(d.metrics.active, n, conceptAttr(c))
		o.ObserveInt64(d.metrics.backlog, backlog[c], conceptAttr(c))
	}
	return nil
}

// Backlog returns the number of updates waiting in subscription streams,
// plus events buffered ahead of their callbacks.
func (d *Dispatcher) Backlog() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, s := range d.subs {
		n += s.waiting()
	}
	return n
}

// Settle blocks until the backlog has been empty for two consecutive polls
// or ctx is done. An update already taken off a stream may still be in its
// callback when Settle returns.
func (d *Dispatcher) Settle(ctx context.Context, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	quiet := 0
	for quiet < 2 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if d.Backlog() == 0 {
			quiet++
		} else {
			quiet = 0
		}
	}
	return nil
}

// Active returns the number of live subscriptions.
func (d *Dispatcher) Active() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Close stops every subscription and waits for their goroutines to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	subs := make([]*subscription, 0, len(d.subs))
	for _, s := range d.subs {
		subs = append(subs, s)
	}
	d.subs = make(map[uuid.UUID]*subscription)
	d.mu.Unlock()

	for _, s := range subs {
		s.stopped.Store(true)
		s.stream.Close()
	}
	d.wg.Wait()
}
