package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/observability/metrics"
	"github.com/peopleops/hrportal/internal/ports"
)

// Login methods, used as metric and log tags.
const (
	MethodPassword = "password"
	MethodOAuth    = "oauth"
	MethodMock     = "mock"
)

// ErrMethodUnavailable is returned when a login flow has no backing provider.
var ErrMethodUnavailable = errors.New("login method not configured")

// Session is the part of the Auth Context the login flows drive.
// *session.Context satisfies it.
type Session interface {
	Login(ctx context.Context, cred domainauth.Credential) error
	Logout(ctx context.Context) error
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider ports.AuthProvider // Optional: redirect flow (oauth or mock)
	Backend  ports.SSOBackend   // Optional: password flow via /sso/login
	// Method tags redirect-flow logins; defaults to MethodOAuth.
	Method  string
	Logger  *slog.Logger
	Metrics metrics.Sink
}

// AuthService obtains a primary credential through one of the login flows
// and hands it to the session. It never stores credentials itself.
type AuthService struct {
	provider ports.AuthProvider
	backend  ports.SSOBackend
	method   string
	logger   *slog.Logger
	metrics  metrics.Sink
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	method := opts.Method
	if method == "" {
		method = MethodOAuth
	}
	return &AuthService{
		provider: opts.Provider,
		backend:  opts.Backend,
		method:   method,
		logger:   logger.With("component", "auth_service"),
		metrics:  opts.Metrics,
	}
}

// RedirectEnabled reports whether the redirect flow is configured.
func (s *AuthService) RedirectEnabled() bool { return s.provider != nil }

// PasswordEnabled reports whether password login is configured.
func (s *AuthService) PasswordEnabled() bool { return s.backend != nil }

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates an authentication flow and returns the provider auth URL with state and nonce.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if s.provider == nil {
		return nil, ErrMethodUnavailable
	}
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	input := ports.BeginInput{RedirectURL: redirectURL}
	authURL, state, nonce, err := s.provider.Begin(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}

	return &BeginLoginResult{
		AuthURL: authURL,
		State:   state,
		Nonce:   nonce,
	}, nil
}

// CompleteLoginInput groups parameters for completing a login flow.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteLoginResult contains the result of completing a login flow.
type CompleteLoginResult struct {
	Identity domainauth.Identity
}

// CompleteLogin exchanges the authorization code for an identity and logs
// the session in with the identity's access token. The user itself is
// resolved by the session against the HR backend, not taken from the IdP.
func (s *AuthService) CompleteLogin(ctx context.Context, sess Session, input CompleteLoginInput) (*CompleteLoginResult, error) {
	if s.provider == nil {
		return nil, ErrMethodUnavailable
	}
	if input.Code == "" {
		return nil, errors.New("authorization code is required")
	}
	if input.State == "" {
		return nil, errors.New("state parameter is required")
	}
	if input.Nonce == "" {
		return nil, errors.New("nonce parameter is required")
	}

	identity, err := s.provider.Exchange(ctx, ports.ExchangeInput{
		Code:  input.Code,
		State: input.State,
		Nonce: input.Nonce,
	})
	if err != nil {
		metrics.EmitLogin(s.metrics, s.method, err)
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	if identity.AccessToken.IsZero() {
		err = errors.New("identity provider returned no access token")
		metrics.EmitLogin(s.metrics, s.method, err)
		return nil, err
	}

	if err := sess.Login(ctx, identity.AccessToken); err != nil {
		metrics.EmitLogin(s.metrics, s.method, err)
		return nil, fmt.Errorf("start session: %w", err)
	}
	metrics.EmitLogin(s.metrics, s.method, nil)
	s.logger.InfoContext(ctx, "login completed", "method", s.method, "user_id", identity.UserID)

	return &CompleteLoginResult{Identity: identity}, nil
}

// PasswordLogin posts the credentials to the backend login endpoint and logs
// the session in with the returned access token.
func (s *AuthService) PasswordLogin(ctx context.Context, sess Session, email, password string) (*ports.LoginResult, error) {
	if s.backend == nil {
		return nil, ErrMethodUnavailable
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	res, err := s.backend.Login(ctx, email, password)
	if err != nil {
		metrics.EmitLogin(s.metrics, MethodPassword, err)
		return nil, fmt.Errorf("password login: %w", err)
	}
	if res.AccessToken.IsZero() {
		err = errors.New("backend returned no access token")
		metrics.EmitLogin(s.metrics, MethodPassword, err)
		return nil, err
	}

	if err := sess.Login(ctx, res.AccessToken); err != nil {
		metrics.EmitLogin(s.metrics, MethodPassword, err)
		return nil, fmt.Errorf("start session: %w", err)
	}
	metrics.EmitLogin(s.metrics, MethodPassword, nil)
	return &res, nil
}

// Logout ends the session.
func (s *AuthService) Logout(ctx context.Context, sess Session) error {
	if sess == nil {
		return nil
	}
	if err := sess.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}
