package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexrealm/projector/internal/channel"
	"github.com/hexrealm/projector/internal/ecs"
	"github.com/hexrealm/projector/internal/model"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.log("DEBUG", msg, keysAndValues)
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.log("INFO", msg, keysAndValues)
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.log("ERROR", msg, keysAndValues)
}

func (l *testLogger) log(level, msg string, keysAndValues []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, keysAndValues))
}

func (l *testLogger) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.messages {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	return d, logger
}

func healthUpdate(e ecs.Entity, current uint64) ecs.Update {
	return ecs.Update{Entity: e, Kind: model.KindHealth, Value: model.Health{Current: current}}
}

// currentHealth derives the raw health, skipping removals.
func currentHealth(u ecs.Update) (uint64, bool) {
	h, ok := ecs.As[model.Health](u.Value)
	return h.Current, ok
}

type collector[E any] struct {
	mu     sync.Mutex
	events []E
}

func (c *collector[E]) emit(e E) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector[E]) snapshot() []E {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]E(nil), c.events...)
}

func TestPump_DerivesInOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)
	var got collector[uint64]

	stream := channel.Of(
		healthUpdate(1, 10),
		ecs.Update{Entity: 1, Kind: model.KindHealth, Previous: model.Health{Current: 10}},
		healthUpdate(2, 20),
	)

	err := Pump(context.Background(), d, "health", stream, currentHealth, got.emit)

	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 20}, got.snapshot(), "removal is skipped by derive")
}

func TestPump_Accept(t *testing.T) {
	d, _ := newTestDispatcher(t)
	var got collector[ecs.Kind]

	stream := channel.Of(
		ecs.Update{Entity: 1, Kind: model.KindArmy, Value: model.Army{}},
		ecs.Update{Entity: 1, Kind: model.KindOwner, Value: model.Owner{}},
		ecs.Update{Entity: 1, Kind: model.KindPosition, Value: model.Position{}},
	)
	kind := func(u ecs.Update) (ecs.Kind, bool) { return u.Kind, true }

	require.NoError(t, Pump(context.Background(), d, "army", stream, kind, got.emit, Accept(model.KindArmy, model.KindPosition)))
	assert.Equal(t, []ecs.Kind{model.KindArmy, model.KindPosition}, got.snapshot())
}

func TestPump_ContextCancelled(t *testing.T) {
	d, _ := newTestDispatcher(t)
	stream := channel.NewBuffered[ecs.Update](1)
	defer stream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Pump(ctx, d, "health", stream, currentHealth, func(uint64) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubscribe_LiveStore(t *testing.T) {
	d, _ := newTestDispatcher(t)
	store := ecs.NewStore()
	events := make(chan uint64, 10)

	unsubscribe := Subscribe(d, "health", store.WatchComponents(ecs.ChangesOnly, model.KindHealth), currentHealth,
		func(h uint64) { events <- h })
	assert.Equal(t, 1, d.Active())

	store.Set(1, model.Health{Current: 5})
	select {
	case h := <-events:
		assert.Equal(t, uint64(5), h)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, d.Active())
	assert.Equal(t, 0, store.Watchers())

	store.Set(1, model.Health{Current: 6})
	select {
	case h := <-events:
		t.Fatalf("event after unsubscribe: %d", h)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribe_EndsWhenStreamCloses(t *testing.T) {
	d, _ := newTestDispatcher(t)
	var got collector[uint64]

	Subscribe(d, "health", channel.Of(healthUpdate(1, 1), healthUpdate(1, 2)), currentHealth, got.emit)

	require.Eventually(t, func() bool { return d.Active() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{1, 2}, got.snapshot())
}

func TestSubscribe_BufferedDropsWhenFull(t *testing.T) {
	d, logger := newTestDispatcher(t)

	block := make(chan struct{})
	var processed atomic.Int32
	updates := make([]ecs.Update, 5)
	for i := range updates {
		updates[i] = healthUpdate(1, uint64(i))
	}

	Subscribe(d, "health", channel.Of(updates...), currentHealth, func(uint64) {
		<-block
		processed.Add(1)
	}, Buffered(1), Logged())

	// one in flight, one queued, the rest dropped
	require.Eventually(t, func() bool { return d.Active() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, logger.count("ERROR"), 3)

	close(block)
	d.Close()
	assert.LessOrEqual(t, processed.Load(), int32(2))
	assert.GreaterOrEqual(t, processed.Load(), int32(1))
}

func TestSubscribe_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	var got collector[uint64]
	Subscribe(d, "health", channel.Of(healthUpdate(1, 1), healthUpdate(1, 2), healthUpdate(1, 3), healthUpdate(1, 4)),
		currentHealth, func(h uint64) {
			<-block
			got.emit(h)
		}, Buffered(1), Blocking())

	// the reader stalls behind the full queue
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, d.Active())

	close(block)
	require.Eventually(t, func() bool { return len(got.snapshot()) == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{1, 2, 3, 4}, got.snapshot())
}

func TestSubscribe_Logged(t *testing.T) {
	d, logger := newTestDispatcher(t)
	var got collector[uint64]

	Subscribe(d, "health", channel.Of(healthUpdate(1, 1), ecs.Update{Entity: 1, Kind: model.KindHealth}), currentHealth, got.emit, Logged())
	require.Eventually(t, func() bool { return d.Active() == 0 }, 2*time.Second, 5*time.Millisecond)

	// subscribed, emitted, skipped
	assert.GreaterOrEqual(t, logger.count("DEBUG"), 3)
}

func TestDispatcher_SubscriptionsAndClose(t *testing.T) {
	d, _ := newTestDispatcher(t)
	store := ecs.NewStore()

	Subscribe(d, "army", store.WatchComponents(ecs.ChangesOnly, model.KindArmy), func(ecs.Update) (int, bool) { return 0, true }, func(int) {})
	Subscribe(d, "tile", store.WatchComponents(ecs.ChangesOnly, model.KindTile), func(ecs.Update) (int, bool) { return 0, true }, func(int) {})

	infos := d.Subscriptions()
	require.Len(t, infos, 2)
	concepts := []string{infos[0].Concept, infos[1].Concept}
	assert.ElementsMatch(t, []string{"army", "tile"}, concepts)
	assert.NotEqual(t, infos[0].ID, infos[1].ID)

	d.Close()
	assert.Equal(t, 0, d.Active())
	assert.Equal(t, 0, store.Watchers())
}

func TestDispatcher_Settle(t *testing.T) {
	d, _ := newTestDispatcher(t)
	store := ecs.NewStore()
	var got collector[uint64]

	Subscribe(d, "health", store.WatchComponents(ecs.ChangesOnly, model.KindHealth), currentHealth, got.emit)
	for i := 1; i <= 500; i++ {
		store.Set(1, model.Health{Current: uint64(i)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Settle(ctx, 5*time.Millisecond))
	assert.Equal(t, 0, d.Backlog())

	assert.Eventually(t, func() bool { return len(got.snapshot()) == 500 }, time.Second, 5*time.Millisecond)
}

func TestDispatcher_SettleCancelled(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Settle(ctx, time.Hour), context.Canceled)
}
