package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/peopleops/hrportal/internal/adapters/tokenstore"
	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/observability/metrics"
	"github.com/peopleops/hrportal/internal/service/ssobridge"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth     AuthService       // Required
	Bridge   *ssobridge.Bridge // Required
	Sessions *Sessions         // Required
	// Renderer is parsed from the embedded templates when nil.
	Renderer *TemplateRenderer
	Cookies  tokenstore.CookieOptions
	CSRF     CSRFConfig
	// SignInPath defaults to /signin.
	SignInPath string
	Metrics    metrics.Sink
	// Ready backs /readyz; nil means the slots live in cookies and need no backend.
	Ready ReadinessCheck
	// MetricsHandler is served at GET /metrics when set (Prometheus backend).
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// NewRouter wires every route onto a ServeMux and wraps it with the
// middleware chain: browser detection, CSRF, logging, panic recovery.
func NewRouter(services RouterServices) (http.Handler, error) {
	if services.Auth == nil || services.Bridge == nil || services.Sessions == nil {
		return nil, errors.New("router: auth service, bridge and sessions are required")
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	renderer := services.Renderer
	if renderer == nil {
		var err error
		if renderer, err = NewTemplateRenderer(logger); err != nil {
			return nil, fmt.Errorf("router: %w", err)
		}
	}

	authHandlers := &AuthHandlers{
		Svc:        services.Auth,
		Sessions:   services.Sessions,
		Renderer:   renderer,
		Bridge:     services.Bridge,
		Cookies:    services.Cookies,
		SignInPath: services.SignInPath,
		Logger:     logger,
	}
	appHandlers := &AppHandlers{Bridge: services.Bridge, Renderer: renderer, Logger: logger}

	guard := RequireSession(SessionGuardConfig{
		Sessions:   services.Sessions,
		Renderer:   renderer,
		SignInPath: services.SignInPath,
		Logger:     logger,
	})
	canLaunch := RequireCapability(domainauth.CapAccessApplication, renderer)

	mux := http.NewServeMux()
	live := healthHandler{}
	ready := healthHandler{check: services.Ready, logger: logger}
	mux.Handle("GET /healthz", live)
	mux.Handle("HEAD /healthz", live)
	mux.Handle("GET /readyz", ready)
	mux.Handle("HEAD /readyz", ready)
	if services.MetricsHandler != nil {
		mux.Handle("GET /metrics", services.MetricsHandler)
	}

	registerAuthRoutes(mux, authHandlers)

	mux.Handle("GET /{$}", guard(http.HandlerFunc(appHandlers.Dashboard)))
	mux.Handle("GET /api/me", guard(http.HandlerFunc(appHandlers.Me)))
	mux.Handle("GET /api/applications", guard(canLaunch(http.HandlerFunc(appHandlers.Applications))))
	mux.Handle("POST /apps/{id}/launch", guard(canLaunch(http.HandlerFunc(appHandlers.Launch))))

	var handler http.Handler = mux
	handler = Recover(logger, renderer)(handler)
	handler = Logging(logger, services.Metrics)(handler)
	handler = CSRFProtection(services.CSRF)(handler)
	return BrowserDetection()(handler), nil
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("GET "+h.signInPath(), h.SignIn)
	mux.HandleFunc("POST /auth/login", h.Login)
	mux.HandleFunc("GET /auth/oauth/start", h.OAuthStart)
	mux.HandleFunc("GET /auth/callback", h.Callback)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/status", h.Status)
	mux.HandleFunc("POST /auth/reset", h.Reset)
	mux.HandleFunc("GET /auth/recover", h.Recovery)
}
