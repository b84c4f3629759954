package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode selects the redirect login provider.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
	// AuthModeNone disables the redirect flow; only password login remains.
	AuthModeNone AuthMode = "none"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "oauth", "mock", "none":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock, none)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"hrportal"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	// CredentialSource picks which token becomes the primary credential:
	// access_token (default) or id_token.
	CredentialSource string `env:"CREDENTIAL_SOURCE" envDefault:"access_token"`
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	Email     string `env:"EMAIL"      envDefault:"employee@hrportal.local"`
	FirstName string `env:"FIRST_NAME" envDefault:"Lena"`
	LastName  string `env:"LAST_NAME"  envDefault:"Park"`
	// Token is returned verbatim when the development backend is not running in-process.
	Token string `env:"TOKEN"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which redirect authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"none"`

	// PasswordEnabled exposes email/password login against the backend.
	PasswordEnabled bool `env:"AUTH_PASSWORD_ENABLED" envDefault:"true"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Sanitize trims provider settings.
func (a *AuthConfig) Sanitize() {
	a.OAuth.DiscoveryURL = strings.TrimSpace(a.OAuth.DiscoveryURL)
	a.OAuth.CredentialSource = strings.ToLower(strings.TrimSpace(a.OAuth.CredentialSource))
	a.DevAuth.Email = strings.TrimSpace(a.DevAuth.Email)
}

// SessionConfig controls how a stored credential is resolved into a user.
type SessionConfig struct {
	// ResolveTimeout bounds each whoami call.
	ResolveTimeout time.Duration `env:"SESSION_RESOLVE_TIMEOUT" envDefault:"5s"`
	// WaitTimeout bounds how long a request waits for resolution before
	// answering with the loading state.
	WaitTimeout time.Duration `env:"SESSION_WAIT_TIMEOUT" envDefault:"3s"`
	// ClearOnFailure wipes a stored credential the backend refused.
	ClearOnFailure bool `env:"SESSION_CLEAR_ON_FAILURE" envDefault:"false"`
	// CacheTTL caches resolved users per credential; negative disables the cache.
	CacheTTL     time.Duration `env:"SESSION_CACHE_TTL"     envDefault:"30s"`
	CacheEntries int           `env:"SESSION_CACHE_ENTRIES" envDefault:"1024"`
}

// Sanitize applies guardrails to session timings.
func (s *SessionConfig) Sanitize() {
	if s.ResolveTimeout <= 0 {
		s.ResolveTimeout = 5 * time.Second
	}
	if s.WaitTimeout <= 0 {
		s.WaitTimeout = 3 * time.Second
	}
	if s.WaitTimeout > s.ResolveTimeout {
		s.WaitTimeout = s.ResolveTimeout
	}
	if s.CacheEntries <= 0 {
		s.CacheEntries = 1024
	}
}
