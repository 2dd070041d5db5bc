package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Eviction reasons.
const (
	ReasonClosed      = "closed"
	ReasonProbeFailed = "probe_failed"
	ReasonAckTimeout  = "ack_timeout"
	ReasonSendFailed  = "send_failed"
	ReasonShutdown    = "shutdown"
)

// Broadcast scopes.
const (
	ScopeAll  = "all"
	ScopeUser = "user"
	ScopeRoom = "room"
)

// Dropped-frame reasons.
const (
	DropMalformed   = "malformed"
	DropUnknownKind = "unknown_kind"
	DropInvalid     = "invalid"
)

var (
	// Presence
	ConnectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_connections_open",
			Help: "Number of connections whose transport was open at the last heartbeat sweep",
		},
	)

	ConnectionsRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_connections_registered",
			Help: "Number of registry entries, including closed transports not yet swept",
		},
	)

	ConnectionsIdentified = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_connections_identified",
			Help: "Number of distinct user ids with at least one registered connection",
		},
	)

	ConnectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_connections_total",
			Help: "Total number of accepted connections",
		},
	)

	EvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_evictions_total",
			Help: "Total number of connections removed from the registry by reason",
		},
		[]string{"reason"},
	)

	// Delivery
	BroadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_broadcasts_total",
			Help: "Total number of broadcast calls by scope",
		},
		[]string{"scope"},
	)

	FramesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_frames_sent_total",
			Help: "Total number of frames enqueued to connections",
		},
	)

	SendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_send_failures_total",
			Help: "Total number of frames that could not be enqueued",
		},
	)

	// Inbound
	InboundFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_inbound_frames_total",
			Help: "Total number of decoded inbound frames by kind",
		},
		[]string{"kind"},
	)

	DroppedFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_dropped_frames_total",
			Help: "Total number of inbound frames dropped by reason",
		},
		[]string{"reason"},
	)

	// Heartbeat
	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hearth_sweep_duration_seconds",
			Help:    "Duration of heartbeat sweeps",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)
)

func init() {
	prometheus.MustRegister(ConnectionsOpen)
	prometheus.MustRegister(ConnectionsRegistered)
	prometheus.MustRegister(ConnectionsIdentified)
	prometheus.MustRegister(ConnectionsTotal)
	prometheus.MustRegister(EvictionsTotal)
	prometheus.MustRegister(BroadcastsTotal)
	prometheus.MustRegister(FramesSent)
	prometheus.MustRegister(SendFailures)
	prometheus.MustRegister(InboundFrames)
	prometheus.MustRegister(DroppedFrames)
	prometheus.MustRegister(SweepDuration)
}

// Handler returns the Prometheus exposition handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer observes the time between NewTimer and ObserveDuration.
type Timer struct {
	t *prometheus.Timer
}

// NewTimer starts a timer reporting into h.
func NewTimer(h prometheus.Observer) *Timer {
	return &Timer{t: prometheus.NewTimer(h)}
}

// ObserveDuration records the elapsed time.
func (t *Timer) ObserveDuration() {
	t.t.ObserveDuration()
}
