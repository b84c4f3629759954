package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/peopleops/hrportal/config"
	"github.com/peopleops/hrportal/internal/adapters/devauth"
	"github.com/peopleops/hrportal/internal/adapters/oidc"
	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/observability/metrics"
	"github.com/peopleops/hrportal/internal/ports"
	"github.com/peopleops/hrportal/internal/service"
)

// AuthConfig contains configuration for auth service.
type AuthConfig struct {
	Auth config.AuthConfig
	// Backend serves password login; ignored when password login is disabled.
	Backend ports.SSOBackend
	// Minter lets the mock provider issue tokens the backend accepts.
	Minter  devauth.Minter
	Logger  *slog.Logger
	Metrics metrics.Sink
}

// BuildAuthService creates an auth service based on the configured login methods.
// A redirect provider that cannot be built is disabled with a warning; it is an
// error only when no login method is left.
func BuildAuthService(ctx context.Context, cfg AuthConfig) (*service.AuthService, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		provider ports.AuthProvider
		method   string
	)
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		if p := buildDevAuthProvider(cfg, logger); p != nil {
			provider, method = p, service.MethodMock
		}
	case config.AuthModeOAuth:
		if p := buildOAuthProvider(ctx, cfg, logger); p != nil {
			provider, method = p, service.MethodOAuth
		}
	}

	var backend ports.SSOBackend
	if cfg.Auth.PasswordEnabled {
		backend = cfg.Backend
	}
	if provider == nil && backend == nil {
		return nil, errors.New("no login method available")
	}

	logger.Info("login methods configured",
		"redirect", method,
		"password", backend != nil,
	)
	return service.NewAuthService(service.AuthServiceOptions{
		Provider: provider,
		Backend:  backend,
		Method:   method,
		Logger:   logger,
		Metrics:  cfg.Metrics,
	}), nil
}

//nolint:ireturn // nil signals a disabled provider.
func buildDevAuthProvider(cfg AuthConfig, logger *slog.Logger) ports.AuthProvider {
	dev := cfg.Auth.DevAuth
	prov, err := devauth.NewProvider(devauth.Config{
		Email:     dev.Email,
		FirstName: dev.FirstName,
		LastName:  dev.LastName,
		Token:     domainauth.Credential(dev.Token),
		Minter:    cfg.Minter,
	})
	if err != nil {
		logger.Warn("failed to create dev auth provider, redirect login disabled", "error", err)
		return nil
	}
	logger.Warn("mock authentication enabled; do not use in production", "email", dev.Email)
	return prov
}

//nolint:ireturn // nil signals a disabled provider.
func buildOAuthProvider(ctx context.Context, cfg AuthConfig, logger *slog.Logger) ports.AuthProvider {
	// Only enable when fully configured
	oauth := cfg.Auth.OAuth
	if oauth.DiscoveryURL == "" || oauth.ClientID == "" || oauth.ClientSecret == "" {
		logger.Warn("AuthModeOAuth selected but required config missing; redirect login disabled",
			"discovery_url_empty", oauth.DiscoveryURL == "",
			"client_id_empty", oauth.ClientID == "",
			"client_secret_empty", oauth.ClientSecret == "",
		)
		return nil
	}

	prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
		ClientID:         oauth.ClientID,
		ClientSecret:     oauth.ClientSecret,
		RedirectURL:      oauth.RedirectURL,
		Scope:            oauth.Scope,
		DiscoveryURL:     oauth.DiscoveryURL,
		CredentialSource: oidc.CredentialSource(oauth.CredentialSource),
	})
	if err != nil {
		logger.Warn("failed to create OIDC provider, redirect login disabled", "error", err)
		return nil
	}
	return prov
}
