package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/peopleops/hrportal/internal/errors"
)

type recordedMetric struct {
	kind  string
	name  string
	value float64
	tags  map[string]string
}

type recordingSink struct {
	mu      sync.Mutex
	metrics []recordedMetric
}

func (r *recordingSink) Count(name string, value int64, tags map[string]string) {
	r.record("count", name, float64(value), tags)
}

func (r *recordingSink) Gauge(name string, value float64, tags map[string]string) {
	r.record("gauge", name, value, tags)
}

func (r *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	r.record("timing", name, float64(value), tags)
}

func (r *recordingSink) record(kind, name string, v float64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, recordedMetric{kind: kind, name: name, value: v, tags: tags})
}

func TestEmitResolution(t *testing.T) {
	sink := &recordingSink{}
	EmitResolution(sink, ResolutionMetric{
		Result:   ResultAnonymous,
		Reason:   "whoami_failed",
		Duration: 20 * time.Millisecond,
		Err:      context.DeadlineExceeded,
	})

	require.Len(t, sink.metrics, 2)
	assert.Equal(t, NameResolution, sink.metrics[0].name)
	assert.Equal(t, "anonymous", sink.metrics[0].tags["result"])
	assert.Equal(t, "whoami_failed", sink.metrics[0].tags["reason"])
	assert.Equal(t, "timeout", sink.metrics[0].tags["error_class"])
	assert.Equal(t, NameResolutionDuration, sink.metrics[1].name)
	assert.Equal(t, "timing", sink.metrics[1].kind)
}

func TestEmitLaunch_FallbackTagsErrorClass(t *testing.T) {
	sink := &recordingSink{}
	EmitLaunch(sink, LaunchMetric{
		Application: "naruku",
		Result:      ResultFallback,
		Exchange:    time.Millisecond,
		Err:         apperrors.FromStatus(502, "bad gateway"),
	})

	require.Len(t, sink.metrics, 2)
	assert.Equal(t, "fallback", sink.metrics[0].tags["result"])
	assert.Equal(t, "unavailable", sink.metrics[0].tags["error_class"])
	assert.Equal(t, NameExchangeDuration, sink.metrics[1].name)
}

func TestEmitDirectoryRefresh(t *testing.T) {
	sink := &recordingSink{}
	EmitDirectoryRefresh(sink, 3, nil)
	EmitDirectoryRefresh(sink, 0, apperrors.Unauthorized("expired"))

	require.Len(t, sink.metrics, 3)
	assert.Equal(t, "gauge", sink.metrics[1].kind)
	assert.InDelta(t, 3.0, sink.metrics[1].value, 0.001)
	assert.Equal(t, "error", sink.metrics[2].tags["result"])
}

func TestEmitters_NilSinkIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		EmitResolution(nil, ResolutionMetric{Result: ResultSuccess})
		EmitLogin(nil, "password", nil)
		EmitLogout(nil)
		EmitLaunch(nil, LaunchMetric{})
		EmitDirectoryRefresh(nil, 1, nil)
		EmitHTTPRequest(nil, "GET", "/", 200, time.Second)
	})
}

func TestFanout_ClonesTagsPerSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	f := Fanout{a, nil, b}

	tags := map[string]string{"method": "password"}
	f.Count(NameLogin, 1, tags)

	require.Len(t, a.metrics, 1)
	require.Len(t, b.metrics, 1)
	a.metrics[0].tags["method"] = "mutated"
	assert.Equal(t, "password", b.metrics[0].tags["method"])
	assert.Equal(t, "password", tags["method"])
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "3xx", statusClass(303))
	assert.Equal(t, "4xx", statusClass(401))
	assert.Equal(t, "5xx", statusClass(502))
}
