package dispatch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hearthnet/hearth/pkg/envelope"
)

// NameStatus is the notification name used for connection state changes.
const NameStatus = "status"

// DefaultBuffer is the per-subscriber queue depth used when Subscribe is
// given a non-positive size.
const DefaultBuffer = 64

// Notification is one published event.
type Notification struct {
	Name      string
	Timestamp time.Time

	// Envelope is set for event notifications.
	Envelope envelope.Envelope
	// Status is set for NameStatus notifications.
	Status string
}

// Subscription receives notifications on C until Unsubscribe.
type Subscription struct {
	C     <-chan Notification
	ch    chan Notification
	names map[string]struct{}
}

func (s *Subscription) wants(name string) bool {
	if len(s.names) == 0 {
		return true
	}
	_, ok := s.names[name]
	return ok
}

// Bus fans notifications out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers interest in names (all names when none are given).
func (b *Bus) Subscribe(buffer int, names ...string) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Notification, buffer)
	sub := &Subscription{C: ch, ch: ch, names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		sub.names[n] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Publish delivers n to every interested subscriber without blocking.
func (b *Bus) Publish(n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !sub.wants(n.Name) {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			slog.Warn("dispatch: subscriber buffer full, dropping", "name", n.Name)
		}
	}
}

// PublishEnvelope publishes env under its kind.
func (b *Bus) PublishEnvelope(env envelope.Envelope) {
	b.Publish(Notification{Name: string(env.Kind), Envelope: env})
}

// PublishStatus publishes a connection state change.
func (b *Bus) PublishStatus(state string) {
	b.Publish(Notification{Name: NameStatus, Status: state})
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unsubscribes everyone. Later subscriptions are returned closed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*Subscription]struct{})
	b.closed = true
}
