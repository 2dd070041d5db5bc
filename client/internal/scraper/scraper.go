package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const defaultScrapeTimeout = 10 * time.Second

// Metric families exported by hearth-server.
const (
	famConnectionsOpen       = "hearth_connections_open"
	famConnectionsRegistered = "hearth_connections_registered"
	famConnectionsIdentified = "hearth_connections_identified"
	famConnectionsTotal      = "hearth_connections_total"
	famEvictions             = "hearth_evictions_total"
	famBroadcasts            = "hearth_broadcasts_total"
	famFramesSent            = "hearth_frames_sent_total"
	famSendFailures          = "hearth_send_failures_total"
	famInboundFrames         = "hearth_inbound_frames_total"
	famDroppedFrames         = "hearth_dropped_frames_total"
	famSweepDuration         = "hearth_sweep_duration_seconds"
)

// Stats is one scrape of a hearth-server. Counters are raw totals since the
// server started.
type Stats struct {
	ScrapedAt time.Time

	ConnectionsOpen       float64
	ConnectionsRegistered float64
	ConnectionsIdentified float64
	ConnectionsTotal      float64
	FramesSent            float64
	SendFailures          float64

	// Keyed by the family's single label.
	Evictions     map[string]float64 // reason
	Broadcasts    map[string]float64 // scope
	InboundFrames map[string]float64 // kind
	DroppedFrames map[string]float64 // reason

	Sweeps       uint64
	SweepSeconds float64
}

// MeanSweep returns the average sweep duration, or 0 before the first sweep.
func (s *Stats) MeanSweep() time.Duration {
	if s.Sweeps == 0 {
		return 0
	}
	return time.Duration(s.SweepSeconds / float64(s.Sweeps) * float64(time.Second))
}

// Scraper fetches and summarises a metrics endpoint.
type Scraper struct {
	url    string
	client *http.Client
}

// New returns a Scraper for url.
func New(url string) *Scraper {
	return &Scraper{
		url:    url,
		client: &http.Client{Timeout: defaultScrapeTimeout},
	}
}

// Scrape fetches the endpoint once.
func (s *Scraper) Scrape(ctx context.Context) (*Stats, error) {
	mfs, err := fetchMetrics(ctx, s.client, s.url)
	if err != nil {
		return nil, fmt.Errorf("scraper: %s: %w", s.url, err)
	}
	return summarise(mfs), nil
}

func summarise(mfs map[string]*dto.MetricFamily) *Stats {
	st := &Stats{
		ScrapedAt:             time.Now().UTC(),
		ConnectionsOpen:       sumFamily(mfs[famConnectionsOpen]),
		ConnectionsRegistered: sumFamily(mfs[famConnectionsRegistered]),
		ConnectionsIdentified: sumFamily(mfs[famConnectionsIdentified]),
		ConnectionsTotal:      sumFamily(mfs[famConnectionsTotal]),
		FramesSent:            sumFamily(mfs[famFramesSent]),
		SendFailures:          sumFamily(mfs[famSendFailures]),
		Evictions:             byLabel(mfs[famEvictions], "reason"),
		Broadcasts:            byLabel(mfs[famBroadcasts], "scope"),
		InboundFrames:         byLabel(mfs[famInboundFrames], "kind"),
		DroppedFrames:         byLabel(mfs[famDroppedFrames], "reason"),
	}
	if mf := mfs[famSweepDuration]; mf != nil {
		for _, m := range mf.GetMetric() {
			if h := m.GetHistogram(); h != nil {
				st.Sweeps += h.GetSampleCount()
				st.SweepSeconds += h.GetSampleSum()
			}
		}
	}
	return st
}

// Keys returns m's keys in sorted order.
func Keys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- helpers ---

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result is accepted only when it already holds a hearth_* family;
// otherwise the parse error is returned.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && !hasHearthFamily(mfs) {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

func hasHearthFamily(mfs map[string]*dto.MetricFamily) bool {
	for name := range mfs {
		if strings.HasPrefix(name, "hearth_") {
			return true
		}
	}
	return false
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil (metric not present in the scrape).
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += value(m)
	}
	return total
}

// byLabel sums mf's samples per value of label.
func byLabel(mf *dto.MetricFamily, label string) map[string]float64 {
	out := make(map[string]float64)
	if mf == nil {
		return out
	}
	for _, m := range mf.GetMetric() {
		key := ""
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label {
				key = lp.GetValue()
				break
			}
		}
		out[key] += value(m)
	}
	return out
}

func value(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}
