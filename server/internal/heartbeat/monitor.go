package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hearthnet/hearth/server/internal/metrics"
	"github.com/hearthnet/hearth/server/internal/registry"
)

// Announcer receives the recomputed online count.
type Announcer interface {
	OnlineCount(count int)
}

// Options tune the sweep.
type Options struct {
	Interval        time.Duration
	AckTimeout      time.Duration
	AlwaysBroadcast bool
}

// Monitor sweeps the registry on a fixed interval.
type Monitor struct {
	reg  *registry.Registry
	out  Announcer
	opts Options

	mu        sync.Mutex
	lastCount int
	now       func() time.Time // injectable for deterministic tests
}

// New creates a Monitor. A zero Interval falls back to 30s.
func New(reg *registry.Registry, out Announcer, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	return &Monitor{
		reg:       reg,
		out:       out,
		opts:      opts,
		lastCount: -1,
		now:       time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled, then closes every
// registered connection.
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.opts.Interval)
	defer t.Stop()

	slog.Info("heartbeat: monitor started",
		"interval", m.opts.Interval,
		"ack_timeout", m.opts.AckTimeout,
		"always_broadcast", m.opts.AlwaysBroadcast)

	for {
		select {
		case <-ctx.Done():
			m.reg.CloseAll()
			slog.Info("heartbeat: monitor stopped, connections closed")
			return
		case <-t.C:
			m.Sweep(m.now())
		}
	}
}

// Sweep runs one probe pass at now and returns the online count it computed.
// Sweeps are serialized.
func (m *Monitor) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	timer := metrics.NewTimer(metrics.SweepDuration)
	defer timer.ObserveDuration()

	for _, ev := range m.reg.Probe(now, m.opts.AckTimeout) {
		slog.Debug("heartbeat: connection evicted",
			"connection_id", ev.ID, "user_id", ev.UserID, "reason", ev.Reason)
	}

	count := m.reg.OnlineCount()
	metrics.ConnectionsOpen.Set(float64(count))
	if m.opts.AlwaysBroadcast || count != m.lastCount {
		m.out.OnlineCount(count)
		if count != m.lastCount {
			slog.Debug("heartbeat: online count changed", "from", m.lastCount, "to", count)
		}
		m.lastCount = count
	}
	return count
}
