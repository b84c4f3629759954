package devauth

// Package devauth provides a config-driven AuthProvider for local development
// ("mock" login mode). It skips the IdP round trip and returns a fixed
// identity whose access token is minted for the configured email.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/ports"
)

// Minter issues a backend-accepted token for email. The dev backend implements it.
type Minter interface {
	MintToken(ctx context.Context, email string) (domainauth.Credential, error)
}

// Config controls the dev auth provider behavior.
// Email is required; either Token or Minter must be set.
type Config struct {
	Email     string
	FirstName string
	LastName  string
	// Token is a static credential used when Minter is nil.
	Token           domainauth.Credential
	Minter          Minter
	SessionDuration time.Duration // default 8h when zero
	// CallbackPath is where Begin sends the browser; default /auth/callback.
	CallbackPath string
}

// Provider implements ports.AuthProvider for local development.
// Begin redirects straight back to the callback with a generated state;
// Exchange ignores the code and returns the configured identity.
type Provider struct {
	cfg Config
}

var _ ports.AuthProvider = (*Provider)(nil)

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	cfg.Email = strings.TrimSpace(cfg.Email)
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	if cfg.Minter == nil && cfg.Token.IsZero() {
		return nil, errors.New("dev auth: Token or Minter is required")
	}
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = 8 * time.Hour
	}
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = "/auth/callback"
	}
	return &Provider{cfg: cfg}, nil
}

// Begin returns a local callback URL and cryptographically secure state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	q := url.Values{"code": {"dev"}, "state": {state}}
	return p.cfg.CallbackPath + "?" + q.Encode(), state, nonce, nil
}

// Exchange returns the dev identity with a freshly minted (or static) token.
func (p *Provider) Exchange(ctx context.Context, _ ports.ExchangeInput) (domainauth.Identity, error) {
	tok := p.cfg.Token
	if p.cfg.Minter != nil {
		minted, err := p.cfg.Minter.MintToken(ctx, p.cfg.Email)
		if err != nil {
			return domainauth.Identity{}, fmt.Errorf("dev auth: mint token: %w", err)
		}
		tok = minted
	}
	return domainauth.Identity{
		UserID:      p.cfg.Email,
		FirstName:   p.cfg.FirstName,
		LastName:    p.cfg.LastName,
		Email:       p.cfg.Email,
		AccessToken: tok,
		ExpiresAt:   time.Now().Add(p.cfg.SessionDuration),
	}, nil
}

func randomString(n int) (string, error) {
	b := make([]byte, (n*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
