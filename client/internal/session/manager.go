package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hearthnet/hearth/client/internal/dispatch"
	"github.com/hearthnet/hearth/pkg/envelope"
)

// EndpointPath is the fixed event endpoint path on the page origin.
const EndpointPath = "/ws"

const writeTimeout = 10 * time.Second

// State is the connection status reported to the UI.
type State string

// Connection states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateLive         State = "live"
	StateExhausted    State = "exhausted"
)

// ErrNotConnected is returned by Send when there is no open transport.
var ErrNotConnected = errors.New("session: not connected")

var errNoIdentity = errors.New("session: no identity")

// Options configures a Manager.
type Options struct {
	// Origin is the page origin; its scheme selects ws or wss.
	Origin string
	// UserID and Token are announced in identify after each connect.
	UserID string
	Token  string
	// BackoffUnit is the base reconnect delay (default 1s).
	BackoffUnit time.Duration
	// MaxAttempts caps automatic reconnects (default 5).
	MaxAttempts int
	// Rooms are joined after each connect.
	Rooms []string
}

type dialFunc func(ctx context.Context, endpoint string) (*websocket.Conn, error)

// Manager owns the client's transport and its reconnection schedule.
type Manager struct {
	endpoint string
	origin   string
	opts     Options
	bus      *dispatch.Bus

	dial  dialFunc                             // injectable for tests
	after func(time.Duration) <-chan time.Time // injectable for tests

	mu     sync.Mutex
	state  State
	userID string
	token  string
	conn   *websocket.Conn
	online int

	writeMu sync.Mutex
}

// New creates a Manager publishing on bus.
func New(opts Options, bus *dispatch.Bus) (*Manager, error) {
	endpoint, err := EndpointURL(opts.Origin)
	if err != nil {
		return nil, err
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	m := &Manager{
		endpoint: endpoint,
		origin:   opts.Origin,
		opts:     opts,
		bus:      bus,
		after:    time.After,
		state:    StateDisconnected,
		userID:   opts.UserID,
		token:    opts.Token,
		online:   -1,
	}
	m.dial = m.defaultDial
	return m, nil
}

// EndpointURL derives the event endpoint from a page origin: http becomes
// ws, https becomes wss, and the path is always /ws.
func EndpointURL(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("session: origin %q: %w", origin, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("session: origin %q: unsupported scheme %q", origin, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("session: origin %q has no host", origin)
	}
	u.Path = EndpointPath
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String(), nil
}

// Endpoint returns the URL the manager dials.
func (m *Manager) Endpoint() string { return m.endpoint }

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnlineCount returns the last online count announced by the server, or -1
// before the first one.
func (m *Manager) OnlineCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Run connects and keeps reconnecting until ctx is cancelled or the retry
// budget is spent. It returns nil in both cases; State tells them apart.
func (m *Manager) Run(ctx context.Context) error {
	attempt := 0
	for {
		m.setState(StateConnecting)
		conn, err := m.dial(ctx, m.endpoint)
		if err == nil {
			attempt = 0
			err = m.serve(ctx, conn)
		}

		if ctx.Err() != nil {
			m.setState(StateDisconnected)
			return nil
		}
		m.setState(StateDisconnected)

		if attempt >= m.opts.MaxAttempts {
			slog.Error("session: giving up, reconnect attempts exhausted",
				"endpoint", m.endpoint, "attempts", attempt, "err", err)
			m.setState(StateExhausted)
			return nil
		}

		wait := m.opts.BackoffUnit << attempt
		attempt++
		slog.Warn("session: connection lost, will reconnect",
			"endpoint", m.endpoint,
			"err", err,
			"attempt", attempt,
			"retry_in", wait)

		select {
		case <-ctx.Done():
			return nil
		case <-m.after(wait):
		}
	}
}

// SetIdentity records the local user. On an open connection identify is
// re-sent immediately; there is no reconnect. A token alone is enough: the
// server may take the user id from the token subject.
func (m *Manager) SetIdentity(userID, token string) {
	m.mu.Lock()
	m.userID, m.token = userID, token
	m.mu.Unlock()

	if userID == "" && token == "" {
		return
	}
	if err := m.identify(); err != nil && !errors.Is(err, ErrNotConnected) {
		slog.Warn("session: identify failed", "user_id", userID, "err", err)
	}
}

// Send writes msg when connected. Otherwise it logs and drops the message.
func (m *Manager) Send(msg envelope.Message) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		slog.Debug("session: not connected, dropping", "kind", msg.Kind())
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, msg.Frame()); err != nil {
		return fmt.Errorf("session: send %s: %w", msg.Kind(), err)
	}
	return nil
}

// --- internal ---------------------------------------------------------------

// serve runs one connected transport until it closes or ctx ends.
func (m *Manager) serve(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer func() {
		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		conn.Close()
	}()

	conn.SetPingHandler(func(data string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		if err := m.Send(envelope.HeartbeatAck()); err != nil {
			slog.Debug("session: heartbeat-ack not sent", "err", err)
		}
		return nil
	})

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	m.setState(StateConnected)
	slog.Info("session: connected", "endpoint", m.endpoint)

	if err := m.identify(); err != nil && !errors.Is(err, errNoIdentity) {
		return err
	}
	for _, room := range m.opts.Rooms {
		if err := m.Send(envelope.RoomJoin(room)); err != nil {
			return err
		}
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		env, err := envelope.Decode(frame)
		if err != nil {
			slog.Debug("session: dropping malformed frame", "err", err)
			continue
		}
		m.observe(env)
		m.bus.PublishEnvelope(env)
	}
}

// identify sends identify for the known user and promotes connected to live.
func (m *Manager) identify() error {
	m.mu.Lock()
	userID, token := m.userID, m.token
	m.mu.Unlock()
	if userID == "" && token == "" {
		return errNoIdentity
	}

	if err := m.Send(envelope.Identify(userID, token)); err != nil {
		return err
	}

	m.mu.Lock()
	promote := m.state == StateConnected
	m.mu.Unlock()
	if promote {
		m.setState(StateLive)
	}
	slog.Debug("session: identify sent", "user_id", userID)
	return nil
}

func (m *Manager) observe(env envelope.Envelope) {
	var count *int
	switch env.Kind {
	case envelope.KindConnectionAck:
		count = env.OnlineCount
	case envelope.KindOnlineCountChanged:
		count = env.Count
	}
	if count == nil {
		return
	}
	m.mu.Lock()
	m.online = *count
	m.mu.Unlock()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	if prev == s {
		return
	}
	slog.Debug("session: state", "from", prev, "to", s)
	m.bus.PublishStatus(string(s))
}

func (m *Manager) defaultDial(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	hdr := http.Header{}
	hdr.Set("Origin", m.origin)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, hdr)
	if err != nil {
		return nil, fmt.Errorf("session: dial %s: %w", endpoint, err)
	}
	return conn, nil
}
