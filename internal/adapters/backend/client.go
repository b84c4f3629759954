// Package backend is the HTTP client for the external HR backend: the whoami
// endpoint, the SSO credential exchange and the application directory.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/domain/sso"
	apperrors "github.com/peopleops/hrportal/internal/errors"
	"github.com/peopleops/hrportal/internal/ports"
)

const (
	pathWhoami       = "/users/me"
	pathLogin        = "/sso/login"
	pathValidate     = "/sso/validate"
	pathAppToken     = "/sso/app-token"
	pathApplications = "/sso/applications"

	// DefaultTimeout bounds every backend call.
	DefaultTimeout = 5 * time.Second

	maxBodyBytes = 1 << 20

	tracerName = "github.com/peopleops/hrportal/internal/adapters/backend"
)

// Config configures the backend client.
type Config struct {
	BaseURL string
	// Timeout bounds each call. Defaults to DefaultTimeout.
	Timeout time.Duration
	// HTTPClient supplies the base transport; its Timeout is ignored in favour of Timeout.
	HTTPClient *http.Client
	// UserPath is a JMESPath locating the user object in whoami responses.
	UserPath string
	// RoleExpr is a JMESPath evaluated against the user object to read the role.
	RoleExpr string
	// TracerProvider records client spans. Defaults to the global provider.
	TracerProvider trace.TracerProvider
	Logger         *slog.Logger
}

// Client talks to the HR backend. It is safe for concurrent use.
type Client struct {
	base    *url.URL
	timeout time.Duration
	rt      http.RoundTripper
	dec     decoder
	tracer  trace.Tracer
	logger  *slog.Logger
}

var (
	_ ports.UserResolver = (*Client)(nil)
	_ ports.SSOBackend   = (*Client)(nil)
)

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("backend base URL is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse backend base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend base URL must be http(s), got %q", base.Scheme)
	}
	base.Path = strings.TrimRight(base.Path, "/")

	dec, err := newDecoder(cfg.UserPath, cfg.RoleExpr)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rt := http.DefaultTransport
	if cfg.HTTPClient != nil && cfg.HTTPClient.Transport != nil {
		rt = cfg.HTTPClient.Transport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Client{
		base:    base,
		timeout: timeout,
		rt:      rt,
		dec:     dec,
		tracer:  tp.Tracer(tracerName),
		logger:  logger.With("component", "backend_client"),
	}, nil
}

// CurrentUser implements ports.UserResolver against GET /users/me.
func (c *Client) CurrentUser(ctx context.Context, cred domainauth.Credential) (domainauth.User, error) {
	if cred.IsZero() {
		return domainauth.User{}, apperrors.Unauthorized("no credential")
	}
	doc, err := c.do(ctx, call{method: http.MethodGet, path: pathWhoami, bearer: cred})
	if err != nil {
		return domainauth.User{}, err
	}
	u, err := c.dec.user(doc)
	if err != nil {
		return domainauth.User{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "malformed whoami response")
	}
	return u, nil
}

// Login implements ports.SSOBackend against POST /sso/login.
func (c *Client) Login(ctx context.Context, email, password string) (ports.LoginResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return ports.LoginResult{}, apperrors.Validation("email and password are required")
	}
	doc, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   pathLogin,
		body:   map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return ports.LoginResult{}, err
	}

	tok, err := token(doc)
	if err != nil {
		return ports.LoginResult{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "malformed login response")
	}
	res := ports.LoginResult{AccessToken: tok}
	if u, uerr := c.dec.userObject(envelopeUser(doc)); uerr == nil {
		res.User = &u
	} else {
		c.logger.DebugContext(ctx, "login response user ignored", "error", uerr)
	}
	return res, nil
}

// Validate implements ports.SSOBackend against POST /sso/validate.
// A rejected token is reported as Valid=false, not as an error.
func (c *Client) Validate(ctx context.Context, tok domainauth.Credential) (ports.ValidateResult, error) {
	if tok.IsZero() {
		return ports.ValidateResult{}, nil
	}
	doc, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   pathValidate,
		body:   map[string]string{"token": string(tok)},
	})
	if apperrors.IsUnauthorized(err) {
		return ports.ValidateResult{}, nil
	}
	if err != nil {
		return ports.ValidateResult{}, err
	}

	res := ports.ValidateResult{Valid: boolField(doc, "valid")}
	if res.Valid {
		if u, uerr := c.dec.userObject(envelopeUser(doc)); uerr == nil {
			res.User = &u
		}
	}
	return res, nil
}

// MintAppToken implements ports.SSOBackend against POST /sso/app-token.
func (c *Client) MintAppToken(
	ctx context.Context,
	primary domainauth.Credential,
	application string,
) (domainauth.Credential, error) {
	if primary.IsZero() {
		return "", apperrors.Unauthorized("no primary credential")
	}
	doc, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   pathAppToken,
		bearer: primary,
		body:   map[string]string{"application": application},
	})
	if err != nil {
		return "", err
	}
	tok, err := token(doc)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeValidation, "malformed app-token response")
	}
	return tok, nil
}

// ListApplications implements ports.SSOBackend against GET /sso/applications.
func (c *Client) ListApplications(ctx context.Context, primary domainauth.Credential) ([]sso.Application, error) {
	doc, err := c.do(ctx, call{method: http.MethodGet, path: pathApplications, bearer: primary})
	if err != nil {
		return nil, err
	}
	apps, err := applications(doc)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "malformed applications response")
	}
	return apps, nil
}

// envelopeUser picks the "user" member of login/validate envelopes.
func envelopeUser(doc any) any {
	if m, ok := doc.(map[string]any); ok {
		if u, ok := m["user"]; ok {
			return u
		}
	}
	return nil
}

type call struct {
	method string
	path   string
	bearer domainauth.Credential
	body   any
}

// do performs one bounded request and returns the parsed JSON document.
// Non-2xx responses become AppErrors via FromStatus.
func (c *Client) do(ctx context.Context, in call) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "backend "+in.method+" "+in.path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", in.method),
		attribute.String("http.route", in.path),
		attribute.Bool("hrportal.bearer", !in.bearer.IsZero()),
	)

	doc, status, err := c.roundTrip(ctx, in)
	if status != 0 {
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return doc, nil
}

func (c *Client) roundTrip(ctx context.Context, in call) (any, int, error) {
	var body io.Reader
	if in.body != nil {
		b, err := json.Marshal(in.body)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	target := c.base.JoinPath(in.path)
	req, err := http.NewRequestWithContext(ctx, in.method, target.String(), body)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient(in.bearer).Do(req)
	if err != nil {
		return nil, 0, transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, transportError(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, apperrors.FromStatus(resp.StatusCode, upstreamMessage(raw, resp.Status))
	}

	doc, err := parse(raw)
	if err != nil {
		return nil, resp.StatusCode, apperrors.Wrap(err, apperrors.ErrCodeValidation, "malformed backend response")
	}
	return doc, resp.StatusCode, nil
}

// httpClient attaches the bearer header through an oauth2 transport when a credential is given.
func (c *Client) httpClient(bearer domainauth.Credential) *http.Client {
	if bearer.IsZero() {
		return &http.Client{Transport: c.rt}
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: string(bearer), TokenType: "Bearer"})
	return &http.Client{Transport: &oauth2.Transport{Source: src, Base: c.rt}}
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "backend request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, "backend request canceled")
	}
	return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "backend request failed")
}

// upstreamMessage prefers a message/error field from a JSON error body.
func upstreamMessage(raw []byte, fallback string) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if m := firstNonEmpty(body.Message, body.Error); m != "" {
			return m
		}
	}
	return "backend responded " + fallback
}
