package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/peopleops/hrportal/config"
	"github.com/peopleops/hrportal/internal/observability/metrics"
	"github.com/peopleops/hrportal/internal/observability/prommetrics"
	"github.com/peopleops/hrportal/internal/observability/statsd"
)

// Metrics bundles the configured sink with the optional scrape handler.
type Metrics struct {
	// Sink is nil when metrics are disabled; every emitter tolerates that.
	Sink metrics.Sink
	// Handler serves /metrics when the Prometheus backend is enabled.
	Handler http.Handler

	statsd *statsd.Client
}

// BuildMetrics creates the sinks selected by cfg.
func BuildMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) (*Metrics, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Metrics{}
	if !cfg.IsEnabled() {
		logger.Info("metrics disabled")
		return m, nil
	}

	var sinks metrics.Fanout
	if cfg.StatsdEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:    true,
			Address:    cfg.StatsdAddress,
			Prefix:     cfg.Prefix,
			Logger:     logger,
			GlobalTags: map[string]string{"service": "hrportal"},
		})
		if err != nil {
			return nil, fmt.Errorf("statsd: %w", err)
		}
		m.statsd = client
		sinks = append(sinks, client)
		logger.Info("statsd metrics enabled", "address", cfg.StatsdAddress)
	}
	if cfg.PrometheusEnabled() {
		prom := prommetrics.New(nil, logger)
		m.Handler = prom.Handler()
		sinks = append(sinks, prom)
		logger.Info("prometheus metrics enabled", "path", "/metrics")
	}

	switch len(sinks) {
	case 0:
	case 1:
		m.Sink = sinks[0]
	default:
		m.Sink = sinks
	}
	return m, nil
}

// Close flushes and closes the StatsD connection, if any.
func (m *Metrics) Close() error {
	if m == nil || m.statsd == nil {
		return nil
	}
	if err := m.statsd.Close(); err != nil {
		return fmt.Errorf("close statsd client: %w", err)
	}
	return nil
}
