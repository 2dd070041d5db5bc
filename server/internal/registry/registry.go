package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearthnet/hearth/server/internal/metrics"
)

var (
	// ErrUnknownConnection is returned by Push for an id that is not registered.
	ErrUnknownConnection = errors.New("registry: unknown connection")
	// ErrQueueFull is returned by a Transport whose outbound queue cannot take
	// another frame.
	ErrQueueFull = errors.New("registry: send queue full")
)

// Transport is the duplex session behind a connection. Implementations must
// not block in Send or Ping: both enqueue work for the transport's own writer.
type Transport interface {
	// Open reports whether the transport can still carry frames.
	Open() bool
	// Send enqueues one text frame.
	Send(frame []byte) error
	// Ping enqueues a liveness probe.
	Ping() error
	// Close tears the transport down. It must be safe to call more than once.
	Close() error
}

// Connection is a read-only view of one registry entry.
type Connection struct {
	ID          string    `json:"connection_id"`
	UserID      string    `json:"user_id,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
	Rooms       []string  `json:"rooms,omitempty"`
	Open        bool      `json:"open"`
}

// Eviction records one connection removed by Probe.
type Eviction struct {
	ID     string
	UserID string
	Reason string
}

type entry struct {
	transport   Transport
	userID      string
	connectedAt time.Time
	lastSeen    time.Time
	rooms       map[string]struct{}
}

// Registry is a thread-safe connection table with user and room indexes.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*entry
	users map[string]map[string]struct{}
	rooms map[string]map[string]struct{}

	now   func() time.Time // injectable for deterministic tests
	newID func() string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		conns: make(map[string]*entry),
		users: make(map[string]map[string]struct{}),
		rooms: make(map[string]map[string]struct{}),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Register adds t under a fresh connection id and returns the id. The new
// connection is anonymous and belongs to no room.
func (r *Registry) Register(t Transport) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for _, taken := r.conns[id]; taken; _, taken = r.conns[id] {
		id = r.newID()
	}
	now := r.now()
	r.conns[id] = &entry{
		transport:   t,
		connectedAt: now,
		lastSeen:    now,
		rooms:       make(map[string]struct{}),
	}
	metrics.ConnectionsTotal.Inc()
	r.gauges()
	return id
}

// Associate binds id to userID, replacing any previous identity. It reports
// false when id is not registered.
func (r *Registry) Associate(id, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return false
	}
	if e.userID == userID {
		return true
	}
	if e.userID != "" {
		removeFrom(r.users, e.userID, id)
	}
	e.userID = userID
	if userID != "" {
		addTo(r.users, userID, id)
	}
	r.gauges()
	return true
}

// Unregister removes id from every index. It does not touch the transport.
// Unregister reports whether this call removed the entry, so callers that
// race on the same id act on the removal exactly once.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.remove(id)
	return ok
}

// Evict unregisters id and closes its transport. reason is recorded in
// hearth_evictions_total. It reports whether this call removed the entry.
func (r *Registry) Evict(id, reason string) bool {
	r.mu.Lock()
	e, ok := r.remove(id)
	r.mu.Unlock()
	if !ok {
		return false
	}

	metrics.EvictionsTotal.WithLabelValues(reason).Inc()
	if err := e.transport.Close(); err != nil {
		slog.Debug("registry: close after eviction", "connection_id", id, "err", err)
	}
	slog.Debug("registry: evicted", "connection_id", id, "user_id", e.userID, "reason", reason)
	return true
}

// RecipientsFor returns the open connections bound to userID. The result is
// nil when the user has no live session.
func (r *Registry) RecipientsFor(userID string) []string {
	if userID == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openIn(r.users[userID])
}

// AllOpen returns a snapshot of every connection id whose transport is open.
func (r *Registry) AllOpen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.conns))
	for id, e := range r.conns {
		if e.transport.Open() {
			out = append(out, id)
		}
	}
	return out
}

// JoinRoom adds id to room. It reports false when id is unknown or already a
// member.
func (r *Registry) JoinRoom(id, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok || room == "" {
		return false
	}
	if _, in := e.rooms[room]; in {
		return false
	}
	e.rooms[room] = struct{}{}
	addTo(r.rooms, room, id)
	return true
}

// LeaveRoom removes id from room. It reports false when id was not a member.
func (r *Registry) LeaveRoom(id, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	if _, in := e.rooms[room]; !in {
		return false
	}
	delete(e.rooms, room)
	removeFrom(r.rooms, room, id)
	return true
}

// RoomMembers returns the open connections currently in room.
func (r *Registry) RoomMembers(room string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openIn(r.rooms[room])
}

// Rooms returns every non-empty room with its member count.
func (r *Registry) Rooms() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.rooms))
	for room, members := range r.rooms {
		out[room] = len(members)
	}
	return out
}

// Touch refreshes id's lastSeen. It reports false when id is unknown.
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	e.lastSeen = r.now()
	return true
}

// Push hands frame to id's transport. The transport is called outside the
// registry lock.
func (r *Registry) Push(id string, frame []byte) error {
	r.mu.Lock()
	e, ok := r.conns[id]
	var t Transport
	if ok {
		t = e.transport
	}
	r.mu.Unlock()
	if !ok {
		return ErrUnknownConnection
	}

	if err := t.Send(frame); err != nil {
		metrics.SendFailures.Inc()
		return fmt.Errorf("registry: push to %s: %w", id, err)
	}
	metrics.FramesSent.Inc()
	return nil
}

// Count returns the number of registered connections, open or not.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// OnlineCount returns the number of registered connections whose transport
// is open. Two tabs of the same user count twice.
func (r *Registry) OnlineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.conns {
		if e.transport.Open() {
			n++
		}
	}
	return n
}

// Identified returns the number of distinct users with at least one
// registered connection.
func (r *Registry) Identified() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// Connections returns a snapshot of every entry, oldest first.
func (r *Registry) Connections() []Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Connection, 0, len(r.conns))
	for id, e := range r.conns {
		c := Connection{
			ID:          id,
			UserID:      e.userID,
			ConnectedAt: e.connectedAt,
			LastSeen:    e.lastSeen,
			Open:        e.transport.Open(),
		}
		for room := range e.rooms {
			c.Rooms = append(c.Rooms, room)
		}
		sort.Strings(c.Rooms)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Probe sends a liveness probe to every registered connection and evicts the
// ones that are closed or fail the probe. A connection that passes is marked
// seen at now, unless ackTimeout > 0: then lastSeen only moves on inbound
// traffic and connections silent for longer than ackTimeout are evicted.
//
// Transports are probed outside the registry lock. Each eviction is reported
// once even if another goroutine removes the same id concurrently.
func (r *Registry) Probe(now time.Time, ackTimeout time.Duration) []Eviction {
	type target struct {
		id       string
		t        Transport
		lastSeen time.Time
	}
	r.mu.Lock()
	targets := make([]target, 0, len(r.conns))
	for id, e := range r.conns {
		targets = append(targets, target{id: id, t: e.transport, lastSeen: e.lastSeen})
	}
	r.mu.Unlock()

	var evictions []Eviction
	var alive []string
	for _, tg := range targets {
		reason := ""
		switch {
		case !tg.t.Open():
			reason = metrics.ReasonClosed
		case ackTimeout > 0 && now.Sub(tg.lastSeen) > ackTimeout:
			reason = metrics.ReasonAckTimeout
		default:
			if err := tg.t.Ping(); err != nil {
				slog.Debug("registry: probe failed", "connection_id", tg.id, "err", err)
				reason = metrics.ReasonProbeFailed
			}
		}
		if reason == "" {
			alive = append(alive, tg.id)
			continue
		}
		userID := r.userOf(tg.id)
		if r.Evict(tg.id, reason) {
			evictions = append(evictions, Eviction{ID: tg.id, UserID: userID, Reason: reason})
		}
	}

	if ackTimeout == 0 && len(alive) > 0 {
		r.mu.Lock()
		for _, id := range alive {
			if e, ok := r.conns[id]; ok {
				e.lastSeen = now
			}
		}
		r.mu.Unlock()
	}
	return evictions
}

// CloseAll evicts every connection. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Evict(id, metrics.ReasonShutdown)
	}
}

// --- internal ---------------------------------------------------------------

// remove deletes id from every index. Caller holds r.mu.
func (r *Registry) remove(id string) (*entry, bool) {
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)
	if e.userID != "" {
		removeFrom(r.users, e.userID, id)
	}
	for room := range e.rooms {
		removeFrom(r.rooms, room, id)
	}
	r.gauges()
	return e, true
}

func (r *Registry) userOf(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		return e.userID
	}
	return ""
}

// openIn filters set down to ids whose transport is open. Caller holds r.mu.
func (r *Registry) openIn(set map[string]struct{}) []string {
	var out []string
	for id := range set {
		if e, ok := r.conns[id]; ok && e.transport.Open() {
			out = append(out, id)
		}
	}
	return out
}

// gauges refreshes the presence gauges. Caller holds r.mu.
func (r *Registry) gauges() {
	metrics.ConnectionsRegistered.Set(float64(len(r.conns)))
	metrics.ConnectionsIdentified.Set(float64(len(r.users)))
}

func addTo(index map[string]map[string]struct{}, key, id string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[id] = struct{}{}
}

func removeFrom(index map[string]map[string]struct{}, key, id string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(index, key)
	}
}
