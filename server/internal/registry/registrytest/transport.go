// Package registrytest provides an in-memory registry.Transport for tests.
package registrytest

import (
	"errors"
	"sync"

	"github.com/hearthnet/hearth/server/internal/registry"
)

// ErrClosed is returned by Send and Ping after Close.
var ErrClosed = errors.New("registrytest: transport closed")

// Transport records every frame it is sent. The zero value is not usable;
// call New.
type Transport struct {
	mu       sync.Mutex
	open     bool
	frames   [][]byte
	pings    int
	closes   int
	sendErr  error
	pingErr  error
	capacity int
}

var _ registry.Transport = (*Transport)(nil)

// New returns an open Transport with an unbounded queue.
func New() *Transport {
	return &Transport{open: true}
}

// WithCapacity returns an open Transport that fails Send with
// registry.ErrQueueFull once n frames are buffered.
func WithCapacity(n int) *Transport {
	return &Transport{open: true, capacity: n}
}

func (t *Transport) Open() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *Transport) Send(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return ErrClosed
	}
	if t.sendErr != nil {
		return t.sendErr
	}
	if t.capacity > 0 && len(t.frames) >= t.capacity {
		return registry.ErrQueueFull
	}
	t.frames = append(t.frames, append([]byte(nil), frame...))
	return nil
}

func (t *Transport) Ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return ErrClosed
	}
	if t.pingErr != nil {
		return t.pingErr
	}
	t.pings++
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = false
	t.closes++
	return nil
}

// Drop marks the transport closed without going through Close, as a peer
// hang-up would.
func (t *Transport) Drop() {
	t.mu.Lock()
	t.open = false
	t.mu.Unlock()
}

// FailSends makes every later Send return err.
func (t *Transport) FailSends(err error) {
	t.mu.Lock()
	t.sendErr = err
	t.mu.Unlock()
}

// FailPings makes every later Ping return err.
func (t *Transport) FailPings(err error) {
	t.mu.Lock()
	t.pingErr = err
	t.mu.Unlock()
}

// Frames returns a copy of the frames sent so far.
func (t *Transport) Frames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.frames))
	copy(out, t.frames)
	return out
}

// Pings returns the number of successful probes.
func (t *Transport) Pings() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pings
}

// Closes returns how many times Close was called.
func (t *Transport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}
