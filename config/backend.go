package config

import (
	"strings"
	"time"
)

// BackendConfig locates the HR backend that owns users, login and SSO tokens.
type BackendConfig struct {
	URL     string        `env:"BACKEND_URL"     envDefault:"http://localhost:8081"`
	Timeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"5s"`
	// UserPath is a JMESPath locating the user object in whoami responses.
	UserPath string `env:"BACKEND_USER_PATH"`
	// RoleExpr is a JMESPath evaluated against the user object to read the role.
	RoleExpr string `env:"BACKEND_ROLE_EXPR"`
	// ExchangeTimeout bounds application token minting during a launch.
	ExchangeTimeout time.Duration `env:"SSO_EXCHANGE_TIMEOUT" envDefault:"5s"`
	// DirectoryTimeout bounds each application directory fetch.
	DirectoryTimeout time.Duration `env:"SSO_DIRECTORY_TIMEOUT" envDefault:"5s"`
	// DirectoryTTL is how long one session's application list is kept.
	DirectoryTTL     time.Duration `env:"SSO_DIRECTORY_TTL"     envDefault:"15m"`
	DirectoryEntries int           `env:"SSO_DIRECTORY_ENTRIES" envDefault:"1024"`
}

// Sanitize applies guardrails to backend values.
func (b *BackendConfig) Sanitize() {
	b.URL = strings.TrimRight(strings.TrimSpace(b.URL), "/")
	if b.Timeout <= 0 {
		b.Timeout = 5 * time.Second
	}
	if b.ExchangeTimeout <= 0 {
		b.ExchangeTimeout = 5 * time.Second
	}
	if b.DirectoryTimeout <= 0 {
		b.DirectoryTimeout = 5 * time.Second
	}
	if b.DirectoryTTL <= 0 {
		b.DirectoryTTL = 15 * time.Minute
	}
	if b.DirectoryEntries <= 0 {
		b.DirectoryEntries = 1024
	}
}

// DevBackendConfig configures the in-process stub of the HR backend.
type DevBackendConfig struct {
	Addr string `env:"DEVBACKEND_ADDR" envDefault:":8081"`
	// Secret signs the HS256 tokens the stub issues.
	Secret       string        `env:"DEVBACKEND_SECRET"        envDefault:"hrportal-dev-secret"`
	SeedPassword string        `env:"DEVBACKEND_SEED_PASSWORD" envDefault:"password"`
	TokenTTL     time.Duration `env:"DEVBACKEND_TOKEN_TTL"     envDefault:"8h"`
	NarukuURL    string        `env:"DEVBACKEND_NARUKU_URL"    envDefault:"http://localhost:5173/sso"`
}

// Sanitize applies guardrails to the stub configuration.
func (d *DevBackendConfig) Sanitize() {
	d.Addr = strings.TrimSpace(d.Addr)
	if d.Addr == "" {
		d.Addr = ":8081"
	}
	if d.TokenTTL <= 0 {
		d.TokenTTL = 8 * time.Hour
	}
}
