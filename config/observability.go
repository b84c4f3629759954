package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// MetricsBackend selects where metrics are sent.
type MetricsBackend string

const (
	// MetricsBackendStatsd emits DogStatsD lines over UDP.
	MetricsBackendStatsd MetricsBackend = "statsd"
	// MetricsBackendPrometheus serves a scrape endpoint at /metrics.
	MetricsBackendPrometheus MetricsBackend = "prometheus"
	// MetricsBackendBoth fans out to StatsD and Prometheus.
	MetricsBackendBoth MetricsBackend = "both"
)

// UnmarshalText implements encoding.TextUnmarshaler for MetricsBackend.
func (m *MetricsBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "statsd", "prometheus", "both":
		*m = MetricsBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid MetricsBackend: %q (valid options: statsd, prometheus, both)", v)
	}
}

// ObservabilityConfig groups configuration that controls logging, metrics and tracing.
type ObservabilityConfig struct {
	Logging LoggingConfig
	Metrics ObservabilityMetricsConfig
	Tracing TracingConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize(isDev bool) {
	c.Logging.Sanitize(isDev)
	c.Metrics.Sanitize()
	c.Tracing.Sanitize()
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level string `env:"LOG_LEVEL"  envDefault:"info"`
	// Format is json or text; development defaults to text.
	Format string `env:"LOG_FORMAT"`
}

// Sanitize normalises the level and format.
func (c *LoggingConfig) Sanitize(isDev bool) {
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format != "json" && c.Format != "text" {
		c.Format = "json"
		if isDev {
			c.Format = "text"
		}
	}
}

// SlogLevel maps Level onto slog, defaulting to info.
func (c LoggingConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool           `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	Backend       MetricsBackend `env:"OBSERVABILITY_METRICS_BACKEND"        envDefault:"statsd"`
	StatsdAddress string         `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string         `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"hrportal"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.Backend == "" {
		c.Backend = MetricsBackendStatsd
	}
	if c.StatsdAddress == "" && c.Backend == MetricsBackendStatsd {
		c.Enabled = false
	}
	if c.StatsdAddress == "" && c.Backend == MetricsBackendBoth {
		c.Backend = MetricsBackendPrometheus
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled
}

// StatsdEnabled reports whether the StatsD sink should be built.
func (c *ObservabilityMetricsConfig) StatsdEnabled() bool {
	return c.Enabled && c.StatsdAddress != "" &&
		(c.Backend == MetricsBackendStatsd || c.Backend == MetricsBackendBoth)
}

// PrometheusEnabled reports whether the Prometheus sink and /metrics should be built.
func (c *ObservabilityMetricsConfig) PrometheusEnabled() bool {
	return c.Enabled && (c.Backend == MetricsBackendPrometheus || c.Backend == MetricsBackendBoth)
}

// TracingConfig controls OTLP trace export.
type TracingConfig struct {
	Enabled bool `env:"OTEL_TRACING_ENABLED" envDefault:"false"`
	// Endpoint is host:port or a full URL of an OTLP/HTTP collector.
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
	ServiceName string  `env:"OTEL_SERVICE_NAME"           envDefault:"hrportal"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLE_RATIO"    envDefault:"1"`
}

// Sanitize disables tracing without an endpoint and clamps the sample ratio.
func (c *TracingConfig) Sanitize() {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.ServiceName = strings.TrimSpace(c.ServiceName)
	if c.ServiceName == "" {
		c.ServiceName = "hrportal"
	}
	if c.Endpoint == "" {
		c.Enabled = false
	}
	switch {
	case c.SampleRatio < 0:
		c.SampleRatio = 0
	case c.SampleRatio > 1:
		c.SampleRatio = 1
	}
}
