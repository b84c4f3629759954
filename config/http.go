package config

import (
	"strings"
	"time"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the application (e.g., "https://hr.example.com").
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// CookieSecure forces the Secure attribute on every cookie. Outside
	// development it is derived from BaseURL when unset.
	CookieSecure bool `env:"APP_COOKIE_SECURE" envDefault:"false"`

	// CookieMaxAge is the lifetime of credential cookies; zero makes them session cookies.
	CookieMaxAge time.Duration `env:"APP_COOKIE_MAX_AGE" envDefault:"12h"`

	// CSRFMaxAge is the lifetime of the CSRF cookie.
	CSRFMaxAge time.Duration `env:"HTTP_CSRF_MAX_AGE" envDefault:"12h"`

	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT"  envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT"  envDefault:"120s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize(isDev bool) {
	h.Addr = strings.TrimSpace(h.Addr)
	if h.Addr == "" {
		h.Addr = ":8080"
	}
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	h.CookieDomain = strings.TrimPrefix(strings.TrimSpace(h.CookieDomain), ".")
	if !isDev && strings.HasPrefix(h.BaseURL, "https://") {
		h.CookieSecure = true
	}
	if h.CookieMaxAge < 0 {
		h.CookieMaxAge = 0
	}
	if h.CSRFMaxAge <= 0 {
		h.CSRFMaxAge = 12 * time.Hour
	}
	if h.ReadTimeout <= 0 {
		h.ReadTimeout = 30 * time.Second
	}
	if h.WriteTimeout <= 0 {
		h.WriteTimeout = 30 * time.Second
	}
	if h.IdleTimeout <= 0 {
		h.IdleTimeout = 120 * time.Second
	}
}
