package websocket

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexrealm/projector/internal/geo"
	"github.com/hexrealm/projector/pkg/core"
	"github.com/hexrealm/projector/pkg/streaming"
)

// testServer creates an httptest server that upgrades to WebSocket,
// records received messages, and acks hello/goodbye.
func testServer(t *testing.T) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ml.setSecret(r.URL.Query().Get("secret"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			if env.Type == streaming.TypeHello || env.Type == streaming.TypeGoodbye {
				data, _ := json.Marshal(streaming.AckMessage{Type: "ack", For: env.Type})
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	secret   string
	messages []streaming.Envelope
}

func (m *messageLog) setSecret(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = s
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]streaming.Envelope(nil), m.messages...)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSessionLifecycle(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	s := New(Config{URL: wsURL(srv), Secret: "test", Precision: 1000})
	require.NoError(t, s.Init())
	require.NoError(t, s.Close())

	msgs := ml.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, streaming.TypeHello, msgs[0].Type)
	assert.Equal(t, streaming.TypeGoodbye, msgs[1].Type)

	var hello streaming.HelloPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &hello))
	assert.Equal(t, s.SessionID().String(), hello.SessionID)
	assert.Equal(t, uint64(1000), hello.Precision)

	ml.mu.Lock()
	assert.Equal(t, "test", ml.secret)
	ml.mu.Unlock()
}

func TestEventsAreStreamedInOrder(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	s := New(Config{URL: wsURL(srv)})
	require.NoError(t, s.Init())

	origin := geo.Normalized{}.Contract()
	require.NoError(t, s.RecordArmy(core.ArmyUpdate{EntityID: 7, HexCoords: geo.Normalized{Col: 1}.Contract()}))
	require.NoError(t, s.RecordStructure(core.StructureUpdate{EntityID: 50, HexCoords: origin}))
	require.NoError(t, s.RecordRealm(core.RealmUpdate{EntityID: 3}))
	require.NoError(t, s.RecordBattle(core.BattleUpdate{EntityID: 42, HexCoords: origin}))
	require.NoError(t, s.RecordBattle(core.BattleUpdate{EntityID: 42, Deleted: true}))
	require.NoError(t, s.RecordTile(core.TileUpdate{HexCoords: origin}))
	require.NoError(t, s.RecordBuilding(core.BuildingUpdate{BuildingType: "Farm"}))
	require.NoError(t, s.Close())

	msgs := ml.all()
	types := make([]string, len(msgs))
	for i, m := range msgs {
		types[i] = m.Type
		if i > 0 {
			assert.Greater(t, m.Seq, msgs[i-1].Seq)
		}
	}
	assert.Equal(t, []string{
		streaming.TypeHello,
		streaming.TypeArmyUpdate,
		streaming.TypeStructureUpdate,
		streaming.TypeRealmUpdate,
		streaming.TypeBattleUpdate,
		streaming.TypeBattleUpdate,
		streaming.TypeTileUpdate,
		streaming.TypeBuildingUpdate,
		streaming.TypeGoodbye,
	}, types)

	var army streaming.ArmyPayload
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &army))
	assert.Equal(t, core.ID(7), army.EntityID)
	assert.InDelta(t, 1.7320508, army.World.X, 1e-6)

	var live, tomb map[string]any
	require.NoError(t, json.Unmarshal(msgs[4].Payload, &live))
	require.NoError(t, json.Unmarshal(msgs[5].Payload, &tomb))
	assert.Contains(t, live, "world")
	assert.NotContains(t, tomb, "world")
	assert.Equal(t, true, tomb["deleted"])
}

func TestInitFailsWithoutServer(t *testing.T) {
	s := New(Config{URL: "ws://127.0.0.1:1/none"})
	assert.Error(t, s.Init())
	assert.NoError(t, s.Close())
}

func TestInitRejectsBadURL(t *testing.T) {
	s := New(Config{URL: "://bad"})
	assert.Error(t, s.Init())
}

func TestAckTimeoutWhenServerSilent(t *testing.T) {
	upgrader := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := New(Config{URL: wsURL(srv)})
	require.NoError(t, s.conn.dial(wsURL(srv), ""))
	defer s.conn.close()

	start := time.Now()
	require.True(t, s.conn.send([]byte(`{"type":"hello"}`)))
	err := s.conn.awaitAck(streaming.TypeHello, 50*time.Millisecond)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestConcurrentRecordsKeepSequenceOrder(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	s := New(Config{URL: wsURL(srv)})
	require.NoError(t, s.Init())

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				assert.NoError(t, s.RecordArmy(core.ArmyUpdate{EntityID: core.ID(w*perWriter + i)}))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, s.Close())

	msgs := ml.all()
	require.Len(t, msgs, writers*perWriter+2)
	for i, m := range msgs {
		assert.Equal(t, uint64(i+1), m.Seq, "message %d arrived out of order", i)
	}
}

func TestSendQueueFull(t *testing.T) {
	var buf bytes.Buffer
	conn := newConnection(slog.New(slog.NewTextHandler(&buf, nil)))
	conn.sendCh = make(chan []byte)
	s := &Sink{conn: conn}

	err := s.RecordRealm(core.RealmUpdate{EntityID: 3})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Contains(t, buf.String(), "WebSocket send channel full")
}
