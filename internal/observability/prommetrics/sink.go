// Package prommetrics exposes the portal's metrics through a Prometheus registry.
package prommetrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peopleops/hrportal/internal/observability/metrics"
)

// Sink maps the shared metric names onto pre-registered Prometheus vectors.
// Observations for names it does not know are dropped.
type Sink struct {
	registry *prometheus.Registry
	logger   *slog.Logger

	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
	labels     map[string][]string
}

var _ metrics.Sink = (*Sink)(nil)

// New creates the portal metrics and registers them with registry.
// A nil registry gets a fresh one.
func New(registry *prometheus.Registry, logger *slog.Logger) *Sink {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sink{
		registry:   registry,
		logger:     logger.With("component", "prommetrics"),
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
		gauges:     map[string]*prometheus.GaugeVec{},
		labels:     map[string][]string{},
	}

	s.counter(metrics.NameResolution, "hrportal_session_resolutions_total",
		"Session resolutions by outcome", "result", "reason", "error_class")
	s.histogram(metrics.NameResolutionDuration, "hrportal_session_resolution_duration_seconds",
		"Whoami latency in seconds", prometheus.DefBuckets, "result")
	s.counter(metrics.NameLogin, "hrportal_logins_total",
		"Login attempts by method and outcome", "method", "result")
	s.counter(metrics.NameLogout, "hrportal_logouts_total", "Logouts")
	s.counter(metrics.NameLaunch, "hrportal_sso_launches_total",
		"Application launches by outcome", "application", "result", "error_class")
	s.histogram(metrics.NameExchangeDuration, "hrportal_sso_exchange_duration_seconds",
		"SSO token exchange latency in seconds", prometheus.DefBuckets, "application")
	s.counter(metrics.NameDirectoryRefresh, "hrportal_sso_directory_refreshes_total",
		"Application directory refreshes", "result", "error_class")
	s.gauge(metrics.NameDirectorySize, "hrportal_sso_directory_applications",
		"Applications currently cached in the directory")
	s.histogram(metrics.NameHTTPRequest, "hrportal_http_request_duration_seconds",
		"HTTP request duration in seconds", prometheus.DefBuckets, "method", "route", "status")

	return s
}

// Registry returns the registry backing the sink.
func (s *Sink) Registry() *prometheus.Registry { return s.registry }

// Handler serves the registry in the Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Count implements metrics.Sink.
func (s *Sink) Count(name string, value int64, tags map[string]string) {
	vec, ok := s.counters[name]
	if !ok {
		s.drop(name)
		return
	}
	vec.WithLabelValues(s.values(name, tags)...).Add(float64(value))
}

// Gauge implements metrics.Sink.
func (s *Sink) Gauge(name string, value float64, tags map[string]string) {
	vec, ok := s.gauges[name]
	if !ok {
		s.drop(name)
		return
	}
	vec.WithLabelValues(s.values(name, tags)...).Set(value)
}

// Timing implements metrics.Sink.
func (s *Sink) Timing(name string, value time.Duration, tags map[string]string) {
	vec, ok := s.histograms[name]
	if !ok {
		s.drop(name)
		return
	}
	vec.WithLabelValues(s.values(name, tags)...).Observe(value.Seconds())
}

func (s *Sink) counter(name, promName, help string, labels ...string) {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: promName, Help: help}, labels)
	s.registry.MustRegister(vec)
	s.counters[name] = vec
	s.labels[name] = labels
}

func (s *Sink) histogram(name, promName, help string, buckets []float64, labels ...string) {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: promName, Help: help, Buckets: buckets}, labels)
	s.registry.MustRegister(vec)
	s.histograms[name] = vec
	s.labels[name] = labels
}

func (s *Sink) gauge(name, promName, help string, labels ...string) {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: promName, Help: help}, labels)
	s.registry.MustRegister(vec)
	s.gauges[name] = vec
	s.labels[name] = labels
}

// values orders tag values by the registered label names; missing tags become "".
func (s *Sink) values(name string, tags map[string]string) []string {
	labels := s.labels[name]
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = tags[l]
	}
	return out
}

func (s *Sink) drop(name string) {
	s.logger.Debug("dropping unregistered metric", "metric", name)
}
