package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesHearthFamilies(t *testing.T) {
	ConnectionsTotal.Inc()
	EvictionsTotal.WithLabelValues(ReasonClosed).Inc()
	BroadcastsTotal.WithLabelValues(ScopeAll).Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	for _, name := range []string{
		"hearth_connections_total",
		"hearth_evictions_total",
		"hearth_broadcasts_total",
		"hearth_connections_open",
		"hearth_connections_registered",
	} {
		assert.True(t, strings.Contains(string(body), name), "missing %s", name)
	}
}

func TestTimer_Observes(t *testing.T) {
	before := testutil.CollectAndCount(SweepDuration)
	tm := NewTimer(SweepDuration)
	tm.ObserveDuration()
	assert.Equal(t, before, testutil.CollectAndCount(SweepDuration))
}
