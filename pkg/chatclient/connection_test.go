package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type serverConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *serverConn) write(env envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(env)
}

// stubGateway acknowledges joins and records them in arrival order.
type stubGateway struct {
	upgrader websocket.Upgrader
	joins    chan string
	tokens   chan string

	mu    sync.Mutex
	conns []*serverConn
}

func newStubGateway(t *testing.T) (*stubGateway, string) {
	g := &stubGateway{joins: make(chan string, 16), tokens: make(chan string, 16)}
	srv := httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(srv.Close)
	return g, "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
}

func (g *stubGateway) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sc := &serverConn{conn: conn}
	g.mu.Lock()
	g.conns = append(g.conns, sc)
	g.mu.Unlock()
	g.tokens <- r.URL.Query().Get("token")

	defer conn.Close()
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Type == EventJoin {
			var p roomPayload
			_ = json.Unmarshal(env.Payload, &p)
			g.joins <- p.ConversationID
			_ = sc.write(envelope{Type: EventJoined, Payload: env.Payload})
		}
	}
}

func (g *stubGateway) latest() *serverConn {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conns[len(g.conns)-1]
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for gateway")
		return ""
	}
}

func TestWebsocketConnection_JoinsAndDispatches(t *testing.T) {
	gw, endpoint := newStubGateway(t)
	wc := NewWebsocketConnection(endpoint, zap.NewNop())
	t.Cleanup(wc.Disconnect)

	events := make(chan MessageNewEvent, 4)
	wc.OnEvent(EventMessageNew, func(payload json.RawMessage) {
		var ev MessageNewEvent
		if json.Unmarshal(payload, &ev) == nil {
			events <- ev
		}
	})

	// Recorded before connecting, sent once the socket is up.
	require.NoError(t, wc.Join("c1"))
	require.NoError(t, wc.Connect(context.Background(), Identity{UserID: "me", Token: "secret"}))
	assert.Equal(t, "secret", receive(t, gw.tokens))
	assert.Equal(t, "c1", receive(t, gw.joins))

	require.NoError(t, wc.Join("c2"))
	assert.Equal(t, "c2", receive(t, gw.joins))

	raw, _ := json.Marshal(MessageNewEvent{ConversationID: "c2", Message: Message{ID: "m1", Text: "hi"}, UnreadCountByUser: map[string]int{"me": 1}})
	require.NoError(t, gw.latest().write(envelope{Type: EventMessageNew, Payload: raw}))

	select {
	case ev := <-events:
		assert.Equal(t, "m1", ev.Message.ID)
		assert.Equal(t, 1, ev.UnreadCountByUser["me"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not dispatched")
	}
}

func TestWebsocketConnection_RejoinsAfterReconnect(t *testing.T) {
	gw, endpoint := newStubGateway(t)
	wc := NewWebsocketConnection(endpoint, zap.NewNop())
	wc.BackoffMin = 10 * time.Millisecond
	wc.BackoffMax = 50 * time.Millisecond
	t.Cleanup(wc.Disconnect)

	reconnected := make(chan struct{}, 1)
	wc.OnEvent(EventReconnected, func(json.RawMessage) { reconnected <- struct{}{} })

	require.NoError(t, wc.Connect(context.Background(), Identity{UserID: "me", Token: "secret"}))
	receive(t, gw.tokens)
	require.NoError(t, wc.Join("c1"))
	require.NoError(t, wc.Join("c2"))
	first := []string{receive(t, gw.joins), receive(t, gw.joins)}
	assert.ElementsMatch(t, []string{"c1", "c2"}, first)
	require.NoError(t, wc.Leave("c2"))

	// Drop the connection from the server side.
	_ = gw.latest().conn.Close()

	assert.Equal(t, "secret", receive(t, gw.tokens))
	assert.Equal(t, "c1", receive(t, gw.joins))
	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("no reconnect event")
	}
	select {
	case id := <-gw.joins:
		t.Fatalf("left room %s was re-joined", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebsocketConnection_DisconnectStopsReconnecting(t *testing.T) {
	gw, endpoint := newStubGateway(t)
	wc := NewWebsocketConnection(endpoint, zap.NewNop())
	wc.BackoffMin = 10 * time.Millisecond

	require.NoError(t, wc.Connect(context.Background(), Identity{UserID: "me", Token: "a"}))
	receive(t, gw.tokens)
	wc.Disconnect()
	wc.Disconnect()

	select {
	case <-gw.tokens:
		t.Fatal("reconnected after Disconnect")
	case <-time.After(100 * time.Millisecond):
	}
	assert.ErrorIs(t, wc.Leave("c1"), ErrNotConnected)
}

func TestWebsocketConnection_IdentityChangeRedials(t *testing.T) {
	gw, endpoint := newStubGateway(t)
	wc := NewWebsocketConnection(endpoint, zap.NewNop())
	t.Cleanup(wc.Disconnect)

	require.NoError(t, wc.Connect(context.Background(), Identity{UserID: "a", Token: "ta"}))
	assert.Equal(t, "ta", receive(t, gw.tokens))
	require.NoError(t, wc.Connect(context.Background(), Identity{UserID: "a", Token: "ta"}))
	require.NoError(t, wc.Connect(context.Background(), Identity{UserID: "b", Token: "tb"}))
	assert.Equal(t, "tb", receive(t, gw.tokens))

	select {
	case tok := <-gw.tokens:
		t.Fatalf("unexpected extra dial with %s", tok)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebsocketConnection_DisconnectDuringReconnect(t *testing.T) {
	gw, endpoint := newStubGateway(t)

	for i := 0; i < 20; i++ {
		wc := NewWebsocketConnection(endpoint, zap.NewNop())
		wc.BackoffMin = time.Millisecond
		wc.BackoffMax = time.Millisecond
		require.NoError(t, wc.Connect(context.Background(), Identity{UserID: "me", Token: "t"}))
		receive(t, gw.tokens)

		// Drop the socket so the client is re-dialing when Disconnect runs.
		_ = gw.latest().conn.Close()

		stopped := make(chan struct{})
		go func() {
			wc.Disconnect()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: Disconnect did not return", i)
		}
		assert.ErrorIs(t, wc.Leave("c1"), ErrNotConnected)

		// Drain dials that raced the shutdown.
		for drained := false; !drained; {
			select {
			case <-gw.tokens:
			case <-time.After(20 * time.Millisecond):
				drained = true
			}
		}
	}
}
