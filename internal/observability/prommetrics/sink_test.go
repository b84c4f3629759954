package prommetrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peopleops/hrportal/internal/observability/metrics"
)

func TestSink_CountsResolutions(t *testing.T) {
	s := New(nil, nil)

	metrics.EmitResolution(s, metrics.ResolutionMetric{Result: metrics.ResultSuccess, Duration: time.Millisecond})
	metrics.EmitResolution(s, metrics.ResolutionMetric{Result: metrics.ResultSuccess})
	metrics.EmitResolution(s, metrics.ResolutionMetric{Result: metrics.ResultAnonymous, Reason: "no_credential"})

	vec := s.counters[metrics.NameResolution]
	assert.InDelta(t, 2.0, testutil.ToFloat64(vec.WithLabelValues("success", "", "")), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(vec.WithLabelValues("anonymous", "no_credential", "")), 0.001)
}

func TestSink_GaugeAndUnknownName(t *testing.T) {
	s := New(nil, nil)

	metrics.EmitDirectoryRefresh(s, 4, nil)
	assert.InDelta(t, 4.0, testutil.ToFloat64(s.gauges[metrics.NameDirectorySize].WithLabelValues()), 0.001)

	assert.NotPanics(t, func() {
		s.Count("not.registered", 1, nil)
		s.Timing("not.registered", time.Second, nil)
		s.Gauge("not.registered", 1, nil)
	})
}

func TestSink_Handler(t *testing.T) {
	s := New(nil, nil)
	metrics.EmitLogin(s, "password", nil)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `hrportal_logins_total{method="password",result="success"} 1`))
}
