package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthnet/hearth/client/internal/dispatch"
	"github.com/hearthnet/hearth/pkg/envelope"
)

// peer is a bare upgrade endpoint standing in for hearth-server.
type peer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	hook  func(*websocket.Conn)
}

func newPeer(t *testing.T, hook func(*websocket.Conn)) *peer {
	t.Helper()
	p := &peer{conns: make(chan *websocket.Conn, 8), hook: hook}
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != EndpointPath {
			http.NotFound(w, r)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if p.hook != nil {
			p.hook(conn)
			return
		}
		p.conns <- conn
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *peer) origin() string { return p.srv.URL }

func (p *peer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-p.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("client never connected")
		return nil
	}
}

func readEnvelope(t *testing.T, c *websocket.Conn) envelope.Envelope {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, frame, err := c.ReadMessage()
	require.NoError(t, err)
	env, err := envelope.Decode(frame)
	require.NoError(t, err)
	return env
}

func runManager(t *testing.T, m *Manager) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
	}
}

// instant replaces the backoff timer and records the requested delays.
func instant(delays *[]time.Duration) func(time.Duration) <-chan time.Time {
	return func(d time.Duration) <-chan time.Time {
		*delays = append(*delays, d)
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
}

func TestEndpointURL(t *testing.T) {
	cases := []struct {
		origin string
		want   string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws"},
		{"https://community.example", "wss://community.example/ws"},
		{"https://community.example/feed?tab=new", "wss://community.example/ws"},
		{"ws://10.0.0.1:9000", "ws://10.0.0.1:9000/ws"},
	}
	for _, tc := range cases {
		got, err := EndpointURL(tc.origin)
		require.NoError(t, err, tc.origin)
		assert.Equal(t, tc.want, got, tc.origin)
	}

	for _, bad := range []string{"ftp://x", "localhost:8080", "http://", "::"} {
		_, err := EndpointURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestNew_Defaults(t *testing.T) {
	m, err := New(Options{Origin: "http://localhost"}, dispatch.New())
	require.NoError(t, err)
	assert.Equal(t, time.Second, m.opts.BackoffUnit)
	assert.Equal(t, 5, m.opts.MaxAttempts)
	assert.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, -1, m.OnlineCount())
	assert.Equal(t, "ws://localhost/ws", m.Endpoint())
}

func TestRun_BackoffThenExhausted(t *testing.T) {
	bus := dispatch.New()
	status := bus.Subscribe(64, dispatch.NameStatus)

	m, err := New(Options{Origin: "http://hearth.test", BackoffUnit: time.Millisecond, MaxAttempts: 5}, bus)
	require.NoError(t, err)

	dials := 0
	m.dial = func(_ context.Context, endpoint string) (*websocket.Conn, error) {
		dials++
		assert.Equal(t, "ws://hearth.test/ws", endpoint)
		return nil, errors.New("connection refused")
	}
	var delays []time.Duration
	m.after = instant(&delays)

	require.NoError(t, m.Run(context.Background()))

	assert.Equal(t, 6, dials, "one initial dial plus five retries")
	assert.Equal(t, []time.Duration{
		1 * time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
		8 * time.Millisecond,
		16 * time.Millisecond,
	}, delays)
	assert.Equal(t, StateExhausted, m.State())

	bus.Close()
	var last string
	for n := range status.C {
		last = n.Status
	}
	assert.Equal(t, string(StateExhausted), last)
}

func TestRun_AttemptResetsOnConnect(t *testing.T) {
	// The peer accepts and immediately hangs up.
	p := newPeer(t, func(c *websocket.Conn) { c.Close() })

	m, err := New(Options{Origin: p.origin(), BackoffUnit: time.Millisecond, MaxAttempts: 5}, dispatch.New())
	require.NoError(t, err)

	dials := 0
	m.dial = func(ctx context.Context, endpoint string) (*websocket.Conn, error) {
		dials++
		if dials == 3 {
			return m.defaultDial(ctx, endpoint)
		}
		return nil, errors.New("connection refused")
	}
	var delays []time.Duration
	m.after = instant(&delays)

	require.NoError(t, m.Run(context.Background()))

	ms := time.Millisecond
	assert.Equal(t, []time.Duration{1 * ms, 2 * ms, 1 * ms, 2 * ms, 4 * ms, 8 * ms, 16 * ms}, delays)
	assert.Equal(t, 8, dials)
	assert.Equal(t, StateExhausted, m.State())
}

func TestRun_CancelBeforeRetry(t *testing.T) {
	m, err := New(Options{Origin: "http://hearth.test"}, dispatch.New())
	require.NoError(t, err)
	m.dial = func(context.Context, string) (*websocket.Conn, error) {
		return nil, errors.New("connection refused")
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.after = func(time.Duration) <-chan time.Time {
		cancel()
		return make(chan time.Time)
	}

	require.NoError(t, m.Run(ctx))
	assert.Equal(t, StateDisconnected, m.State())
}

func TestConnect_IdentifiesAndJoinsRooms(t *testing.T) {
	p := newPeer(t, nil)
	m, err := New(Options{
		Origin: p.origin(),
		UserID: "u1",
		Token:  "t1",
		Rooms:  []string{"lobby"},
	}, dispatch.New())
	require.NoError(t, err)

	stop := runManager(t, m)
	sc := p.accept(t)

	env := readEnvelope(t, sc)
	assert.Equal(t, envelope.KindIdentify, env.Kind)
	assert.Equal(t, "u1", env.UserID)
	assert.Equal(t, "t1", env.Token)

	env = readEnvelope(t, sc)
	assert.Equal(t, envelope.KindRoomJoin, env.Kind)
	assert.Equal(t, "lobby", env.Room)

	require.Eventually(t, func() bool { return m.State() == StateLive }, 2*time.Second, 10*time.Millisecond)

	// Identity change on an open transport re-sends identify on the same connection.
	m.SetIdentity("u2", "t2")
	env = readEnvelope(t, sc)
	assert.Equal(t, envelope.KindIdentify, env.Kind)
	assert.Equal(t, "u2", env.UserID)

	stop()
	assert.Equal(t, StateDisconnected, m.State())
}

func TestConnect_AnonymousWaitsForIdentity(t *testing.T) {
	p := newPeer(t, nil)
	m, err := New(Options{Origin: p.origin()}, dispatch.New())
	require.NoError(t, err)

	stop := runManager(t, m)
	defer stop()
	sc := p.accept(t)

	require.Eventually(t, func() bool { return m.State() == StateConnected }, 2*time.Second, 10*time.Millisecond)
	// Give a stray identify a chance to show up; none should.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateConnected, m.State())

	m.SetIdentity("u9", "")
	env := readEnvelope(t, sc)
	assert.Equal(t, envelope.KindIdentify, env.Kind)
	assert.Equal(t, "u9", env.UserID)
	require.Eventually(t, func() bool { return m.State() == StateLive }, 2*time.Second, 10*time.Millisecond)
}

func TestInbound_RepublishedOnBus(t *testing.T) {
	p := newPeer(t, nil)
	bus := dispatch.New()
	sub := bus.Subscribe(16, string(envelope.KindConnectionAck), string(envelope.KindOnlineCountChanged))

	m, err := New(Options{Origin: p.origin()}, bus)
	require.NoError(t, err)
	stop := runManager(t, m)
	defer stop()
	sc := p.accept(t)

	require.NoError(t, sc.WriteMessage(websocket.TextMessage, envelope.ConnectionAck("c1", 3).Frame()))
	require.NoError(t, sc.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, sc.WriteMessage(websocket.TextMessage, envelope.OnlineCountChanged(4).Frame()))

	next := func() dispatch.Notification {
		select {
		case n := <-sub.C:
			return n
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for notification")
			return dispatch.Notification{}
		}
	}

	n := next()
	assert.Equal(t, string(envelope.KindConnectionAck), n.Name)
	assert.Equal(t, "c1", n.Envelope.ConnectionID)

	n = next()
	assert.Equal(t, string(envelope.KindOnlineCountChanged), n.Name)
	require.NotNil(t, n.Envelope.Count)
	assert.Equal(t, 4, *n.Envelope.Count)

	assert.Equal(t, 4, m.OnlineCount())
}

func TestPing_AnsweredWithPongAndAck(t *testing.T) {
	p := newPeer(t, nil)
	m, err := New(Options{Origin: p.origin()}, dispatch.New())
	require.NoError(t, err)
	stop := runManager(t, m)
	defer stop()
	sc := p.accept(t)

	var pong atomic.Value
	sc.SetPongHandler(func(data string) error {
		pong.Store(data)
		return nil
	})
	require.NoError(t, sc.WriteControl(websocket.PingMessage, []byte("hb"), time.Now().Add(time.Second)))

	env := readEnvelope(t, sc)
	assert.Equal(t, envelope.KindHeartbeatAck, env.Kind)
	assert.Equal(t, "hb", pong.Load())
}

func TestSend_DroppedWhenDisconnected(t *testing.T) {
	m, err := New(Options{Origin: "http://hearth.test"}, dispatch.New())
	require.NoError(t, err)
	err = m.Send(envelope.RoomJoin("lobby"))
	assert.ErrorIs(t, err, ErrNotConnected)

	// SetIdentity without a transport only records the identity.
	m.SetIdentity("u1", "")
	assert.Equal(t, StateDisconnected, m.State())
	assert.True(t, strings.HasPrefix(m.Endpoint(), "ws://"))
}

func TestSetIdentity_TokenOnly(t *testing.T) {
	p := newPeer(t, nil)
	m, err := New(Options{Origin: p.origin()}, dispatch.New())
	require.NoError(t, err)

	stop := runManager(t, m)
	defer stop()
	sc := p.accept(t)
	require.Eventually(t, func() bool { return m.State() == StateConnected }, 2*time.Second, 10*time.Millisecond)

	// In jwt mode the server reads the user id from the token subject.
	m.SetIdentity("", "jwt-token")
	env := readEnvelope(t, sc)
	assert.Equal(t, envelope.KindIdentify, env.Kind)
	assert.Empty(t, env.UserID)
	assert.Equal(t, "jwt-token", env.Token)
	require.Eventually(t, func() bool { return m.State() == StateLive }, 2*time.Second, 10*time.Millisecond)

	// Token rotation on a live connection is re-sent too.
	m.SetIdentity("", "jwt-token-2")
	env = readEnvelope(t, sc)
	assert.Equal(t, "jwt-token-2", env.Token)
}
