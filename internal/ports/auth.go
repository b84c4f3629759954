package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/domain/sso"
)

// Credential slot names. The primary and SSO credentials never share a slot.
const (
	SlotPrimary = "token"
	SlotSSO     = "sso-token"
)

// TokenStore persists a single credential slot.
// A store with no backing context (nil request, nil receiver) reports absent
// from Get and ignores Set and Clear.
type TokenStore interface {
	Get(ctx context.Context) (domainauth.Credential, bool)
	Set(ctx context.Context, cred domainauth.Credential) error
	Clear(ctx context.Context) error
}

// UserResolver fetches the user behind a primary credential ("whoami").
type UserResolver interface {
	CurrentUser(ctx context.Context, cred domainauth.Credential) (domainauth.User, error)
}

// LoginResult is returned by a password login.
type LoginResult struct {
	AccessToken domainauth.Credential
	User        *domainauth.User
}

// ValidateResult is returned by token validation.
type ValidateResult struct {
	Valid bool
	User  *domainauth.User
}

// SSOBackend is the credential-exchange surface of the HR backend.
type SSOBackend interface {
	Login(ctx context.Context, email, password string) (LoginResult, error)
	Validate(ctx context.Context, token domainauth.Credential) (ValidateResult, error)
	MintAppToken(ctx context.Context, primary domainauth.Credential, application string) (domainauth.Credential, error)
	ListApplications(ctx context.Context, primary domainauth.Credential) ([]sso.Application, error)
}

// Navigator issues a navigation to path (e.g. the sign-in entry point).
type Navigator interface {
	Navigate(path string)
}

// Opener opens url in a new browsing context.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// BeginInput carries inputs for initiating an auth flow.
type BeginInput struct {
	RedirectURL string
}

// AuthProvider initiates and completes a redirect-based authentication flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}
