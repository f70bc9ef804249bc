package realtime_test

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
	"github.com/stretchr/testify/require"

	"github.com/novalearn/go-portal-client/realtime"
)

type fakeSource struct {
	mu  sync.Mutex
	tok string
}

func (f *fakeSource) AccessToken() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tok, f.tok != ""
}

func (f *fakeSource) set(tok string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tok = tok
}

// wsServer accepts websocket upgrades and hands the server side of each
// connection to the test.
type wsServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	headers []string
	connCh  chan *websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	ws := &wsServer{connCh: make(chan *websocket.Conn, 8)}
	ws.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.mu.Lock()
		ws.headers = append(ws.headers, r.Header.Get("Authorization"))
		ws.mu.Unlock()

		conn, err := ws.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.connCh <- conn
	}))
	t.Cleanup(ws.server.Close)
	return ws
}

func (ws *wsServer) url() string {
	return "ws" + strings.TrimPrefix(ws.server.URL, "http")
}

func (ws *wsServer) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ws.connCh:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a connection")
		return nil
	}
}

func (ws *wsServer) authHeader(i int) string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if i >= len(ws.headers) {
		return ""
	}
	return ws.headers[i]
}

func newTestChannel(t *testing.T, ws *wsServer, source realtime.TokenSource, options ...realtime.ChannelOption) *realtime.Channel {
	t.Helper()
	ch, err := realtime.NewChannel(ws.url(), source, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func TestChannelConnectSendsBearer(t *testing.T) {
	ws := newWSServer(t)
	ch := newTestChannel(t, ws, &fakeSource{tok: "token-1"})

	require.NoError(t, ch.Connect(context.Background()))
	ws.waitConn(t)

	require.Equal(t, "Bearer token-1", ws.authHeader(0))
	require.Equal(t, realtime.StateConnected, ch.State())
	require.False(t, ch.LastGood().IsZero())

	// Connect on an already-connected channel is a no-op.
	require.NoError(t, ch.Connect(context.Background()))
	select {
	case <-ws.connCh:
		t.Fatal("unexpected second connection")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannelDispatchesEvents(t *testing.T) {
	ws := newWSServer(t)
	ch := newTestChannel(t, ws, &fakeSource{tok: "token-1"})

	received := make(chan json.RawMessage, 2)
	unsubscribe := ch.On("new_notification", func(data json.RawMessage) {
		received <- data
	})

	require.NoError(t, ch.Connect(context.Background()))
	conn := ws.waitConn(t)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": "new_notification",
		"data":  map[string]string{"id": "n-1"},
	}))

	select {
	case data := <-received:
		var payload struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(data, &payload))
		require.Equal(t, "n-1", payload.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}

	unsubscribe()
	unsubscribe() // safe to call twice

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": "new_notification",
		"data":  map[string]string{"id": "n-2"},
	}))
	select {
	case <-received:
		t.Fatal("unsubscribed handler was invoked")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestChannelReconnectsWithFreshToken(t *testing.T) {
	ws := newWSServer(t)
	source := &fakeSource{tok: "token-1"}
	ch := newTestChannel(t, ws, source, realtime.WithReconnectDelay(30*time.Millisecond))

	require.NoError(t, ch.Connect(context.Background()))
	conn := ws.waitConn(t)

	// Rotate the token, then kill the connection server-side. The reconnect
	// must pick up the fresh token, not the one it dialed with.
	source.set("token-2")
	_ = conn.Close()

	ws.waitConn(t)
	require.Equal(t, "Bearer token-2", ws.authHeader(1))
	require.Eventually(t, func() bool {
		return ch.State() == realtime.StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	// A successful reconnect resets the retry counter.
	require.Equal(t, 0, ch.Retries())
}

func TestChannelCloseCancelsPendingReconnect(t *testing.T) {
	ws := newWSServer(t)
	ch := newTestChannel(t, ws, &fakeSource{tok: "token-1"}, realtime.WithReconnectDelay(100*time.Millisecond))

	require.NoError(t, ch.Connect(context.Background()))
	conn := ws.waitConn(t)

	_ = conn.Close()
	require.Eventually(t, func() bool {
		return ch.State() == realtime.StateDisconnected
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, ch.Retries())

	// Close lands while the reconnect timer is pending; the timer must not fire.
	require.NoError(t, ch.Close())
	require.Equal(t, realtime.StateClosed, ch.State())

	select {
	case <-ws.connCh:
		t.Fatal("reconnect fired after close")
	case <-time.After(300 * time.Millisecond):
	}
	require.Equal(t, realtime.StateClosed, ch.State())
}

func TestChannelConnectAfterCloseIsNoOp(t *testing.T) {
	ws := newWSServer(t)
	ch := newTestChannel(t, ws, &fakeSource{tok: "token-1"})

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close()) // idempotent
	require.NoError(t, ch.Connect(context.Background()))
	require.Equal(t, realtime.StateClosed, ch.State())

	select {
	case <-ws.connCh:
		t.Fatal("closed channel dialed out")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEmitWhileDisconnectedIsDropped(t *testing.T) {
	ws := newWSServer(t)
	ch := newTestChannel(t, ws, &fakeSource{tok: "token-1"})

	ch.Emit("join_room", map[string]string{"room": "class-1"})
	ch.JoinRoom("class-1") // still disconnected, still safe
	require.Equal(t, realtime.StateDisconnected, ch.State())
}

func TestEmitWithAck(t *testing.T) {
	ws := newWSServer(t)
	ch := newTestChannel(t, ws, &fakeSource{tok: "token-1"})

	require.NoError(t, ch.Connect(context.Background()))
	conn := ws.waitConn(t)

	// Echo server: reply to the first frame with an ack carrying its id.
	go func() {
		var f struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			AckID string          `json:"ackId"`
		}
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]interface{}{
			"event": "ack",
			"ackId": f.AckID,
			"data":  map[string]bool{"ok": true},
		})
	}()

	acked := make(chan json.RawMessage, 1)
	ch.EmitWithAck("send_message", map[string]string{"room": "class-1", "message": "hello"},
		func(data json.RawMessage) { acked <- data })

	select {
	case data := <-acked:
		var reply struct {
			OK bool `json:"ok"`
		}
		require.NoError(t, json.Unmarshal(data, &reply))
		require.True(t, reply.OK)
	case <-time.After(2 * time.Second):
		t.Fatal("ack was not delivered")
	}
}

func TestConnectHookRunsOnEveryConnect(t *testing.T) {
	ws := newWSServer(t)
	ch := newTestChannel(t, ws, &fakeSource{tok: "token-1"}, realtime.WithReconnectDelay(30*time.Millisecond))

	connects := make(chan struct{}, 4)
	ch.OnConnect(func() { connects <- struct{}{} })

	require.NoError(t, ch.Connect(context.Background()))
	conn := ws.waitConn(t)
	<-connects

	_ = conn.Close()
	ws.waitConn(t)

	select {
	case <-connects:
	case <-time.After(2 * time.Second):
		t.Fatal("connect hook did not run on reconnect")
	}
}
