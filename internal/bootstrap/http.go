package bootstrap

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/peopleops/hrportal/config"
	httpx "github.com/peopleops/hrportal/internal/http"
	"github.com/peopleops/hrportal/internal/observability/metrics"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Metrics  *Metrics
	Logger   *slog.Logger
}

// BuildHTTPHandler assembles the portal router from the service container.
func BuildHTTPHandler(cfg HTTPServerConfig) (http.Handler, error) {
	if cfg.Config == nil || cfg.Services == nil {
		return nil, errors.New("http handler requires config and services")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config

	var (
		sink        metrics.Sink
		metricsHTTP http.Handler
	)
	if cfg.Metrics != nil {
		sink = cfg.Metrics.Sink
		metricsHTTP = cfg.Metrics.Handler
	}

	return httpx.NewRouter(httpx.RouterServices{
		Auth:   cfg.Services.Auth,
		Bridge: cfg.Services.Bridge,
		Sessions: &httpx.Sessions{
			Stores:      cfg.Services.Stores,
			Factory:     cfg.Services.Factory,
			WaitTimeout: appCfg.Session.WaitTimeout,
		},
		Cookies: CookieOptions(appCfg.HTTP),
		CSRF: httpx.CSRFConfig{
			CookieDomain: appCfg.HTTP.CookieDomain,
			Secure:       appCfg.HTTP.CookieSecure,
			MaxAge:       appCfg.HTTP.CSRFMaxAge,
		},
		Metrics:        sink,
		Ready:          cfg.Services.Ready,
		MetricsHandler: metricsHTTP,
		Logger:         logger,
	})
}

// NewHTTPServer builds a server with the configured timeouts.
func NewHTTPServer(addr string, handler http.Handler, h config.HTTPConfig) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  h.ReadTimeout,
		WriteTimeout: h.WriteTimeout,
		IdleTimeout:  h.IdleTimeout,
	}
}
