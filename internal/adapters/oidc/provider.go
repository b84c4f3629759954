package oidc

// Package oidc provides the OIDC/OAuth login adapter. The token it returns in
// Identity.AccessToken becomes the primary credential sent to the HR backend.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/ports"
)

// CredentialSource selects which token from the IdP response is presented
// to the HR backend as the bearer credential.
type CredentialSource string

const (
	CredentialAccessToken CredentialSource = "access_token"
	CredentialIDToken     CredentialSource = "id_token"
)

// Provider implements ports.AuthProvider using OIDC/OAuth2.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
	source     CredentialSource

	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

var _ ports.AuthProvider = (*Provider)(nil)

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	// CredentialSource defaults to CredentialAccessToken.
	CredentialSource CredentialSource
	HTTPClient       *http.Client // Optional, defaults to a 30s client
}

// NewProvider creates a new OIDC provider, fetching the discovery document once.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}
	source := config.CredentialSource
	switch source {
	case "":
		source = CredentialAccessToken
	case CredentialAccessToken, CredentialIDToken:
	default:
		return nil, fmt.Errorf("unknown credential source %q", source)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	dctx := gooidc.ClientContext(ctx, httpClient)
	op, err := gooidc.NewProvider(dctx, issuerFromDiscoveryURL(config.DiscoveryURL))
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	scopes := strings.Fields(config.Scope)
	if source == CredentialIDToken && !slices.Contains(scopes, gooidc.ScopeOpenID) {
		scopes = append([]string{gooidc.ScopeOpenID}, scopes...)
	}

	return &Provider{
		httpClient:   httpClient,
		source:       source,
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: config.ClientID}),
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       scopes,
			Endpoint:     op.Endpoint(),
		},
	}, nil
}

func issuerFromDiscoveryURL(u string) string {
	issuer := strings.TrimSuffix(u, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	return strings.TrimSuffix(issuer, ".well-known/openid-configuration")
}

// Begin returns the IdP authorization URL with a fresh state and nonce.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}

	state, err := randomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	// redirect_uri stays the configured one; IdPs match it exactly.
	authURL := p.config.AuthCodeURL(state,
		gooidc.Nonce(nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

// Exchange trades the code for tokens, verifies the ID token (when present)
// against the nonce and maps the claims into an Identity carrying the
// configured credential.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.Code == "" {
		return domainauth.Identity{}, errors.New("authorization code is required")
	}
	if in.State == "" {
		return domainauth.Identity{}, errors.New("state is required")
	}
	if in.Nonce == "" {
		return domainauth.Identity{}, errors.New("nonce is required")
	}

	ctx = gooidc.ClientContext(ctx, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	rawID, _ := token.Extra("id_token").(string)
	var c claims
	if rawID != "" {
		if c, err = p.verifyIDToken(ctx, rawID, in.Nonce); err != nil {
			return domainauth.Identity{}, err
		}
	} else if p.source == CredentialIDToken {
		return domainauth.Identity{}, errors.New("missing id_token in token response")
	}

	if c.userID() == "" || c.email() == "" {
		ui, uiErr := p.userInfo(ctx, token)
		if uiErr != nil {
			return domainauth.Identity{}, fmt.Errorf("get user info: %w", uiErr)
		}
		c = c.merge(ui)
	}

	cred := domainauth.Credential(token.AccessToken)
	if p.source == CredentialIDToken {
		cred = domainauth.Credential(rawID)
	}
	if cred.IsZero() {
		return domainauth.Identity{}, fmt.Errorf("token response has no %s", p.source)
	}

	expiresAt := time.Now().Add(time.Hour)
	if !token.Expiry.IsZero() {
		expiresAt = token.Expiry
	}

	return domainauth.Identity{
		UserID:      c.userID(),
		FirstName:   firstNonEmpty(c.GivenName, c.FirstName),
		LastName:    firstNonEmpty(c.FamilyName, c.LastName),
		Email:       c.email(),
		Groups:      c.groups(),
		AccessToken: cred,
		ExpiresAt:   expiresAt,
	}, nil
}

func (p *Provider) verifyIDToken(ctx context.Context, raw, expectedNonce string) (claims, error) {
	var c claims
	idTok, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return c, fmt.Errorf("verify id_token: %w", err)
	}
	if err := idTok.Claims(&c); err != nil {
		return c, fmt.Errorf("parse id_token claims: %w", err)
	}
	if idTok.Nonce != expectedNonce {
		return c, errors.New("invalid nonce")
	}
	return c, nil
}

func (p *Provider) userInfo(ctx context.Context, tok *oauth2.Token) (claims, error) {
	var c claims
	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return c, fmt.Errorf("fetch user info: %w", err)
	}
	if err := ui.Claims(&c); err != nil {
		return c, fmt.Errorf("decode user info: %w", err)
	}
	return c, nil
}

// claims covers the standard OIDC shape plus the AD/ADFS names some
// corporate IdPs still emit.
type claims struct {
	Sub               string   `json:"sub"`
	PreferredUsername string   `json:"preferred_username"`
	Email             string   `json:"email"`
	GivenName         string   `json:"given_name"`
	FamilyName        string   `json:"family_name"`
	Groups            []string `json:"groups"`

	SamAccountName string   `json:"samaccountname"`
	FirstName      string   `json:"firstname"`
	LastName       string   `json:"lastname"`
	Mail           string   `json:"mail"`
	MemberOf       []string `json:"memberof"`
}

func (c claims) userID() string {
	return firstNonEmpty(c.PreferredUsername, c.SamAccountName, c.Sub)
}

func (c claims) email() string { return firstNonEmpty(c.Email, c.Mail) }

func (c claims) groups() []string {
	if len(c.Groups) > 0 {
		return c.Groups
	}
	return c.MemberOf
}

// merge fills c's empty fields from other. Fields already set win.
func (c claims) merge(other claims) claims {
	out := c
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&out.Sub, other.Sub)
	fill(&out.PreferredUsername, other.PreferredUsername)
	fill(&out.Email, other.Email)
	fill(&out.GivenName, other.GivenName)
	fill(&out.FamilyName, other.FamilyName)
	fill(&out.SamAccountName, other.SamAccountName)
	fill(&out.FirstName, other.FirstName)
	fill(&out.LastName, other.LastName)
	fill(&out.Mail, other.Mail)
	if len(out.Groups) == 0 {
		out.Groups = other.Groups
	}
	if len(out.MemberOf) == 0 {
		out.MemberOf = other.MemberOf
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// randomString returns a URL-safe random string of exactly n characters.
func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	b := make([]byte, (n*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
