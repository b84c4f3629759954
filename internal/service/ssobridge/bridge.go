package ssobridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/domain/sso"
	"github.com/peopleops/hrportal/internal/observability/metrics"
	"github.com/peopleops/hrportal/internal/ports"
)

const defaultExchangeTimeout = 5 * time.Second

// TokenParam is the query parameter carrying the application token.
const TokenParam = "token"

// Sentinel errors returned by Launch.
var (
	ErrUnknownApplication = errors.New("unknown application")
	ErrForbidden          = errors.New("application not permitted for this role")
	ErrNotAuthenticated   = errors.New("no authenticated user")
)

// Principal is the launching session. *session.Context satisfies it.
type Principal interface {
	Snapshot() domainauth.Snapshot
	Credential() (domainauth.Credential, bool)
}

// BridgeOptions groups dependencies for Bridge.
type BridgeOptions struct {
	Directory       *Directory       // Required: per-session application cache
	Backend         ports.SSOBackend // Required
	Store           ports.TokenStore // Optional: the sso-token slot
	Opener          ports.Opener     // Optional: nil skips opening
	ExchangeTimeout time.Duration    // Optional: default 5s
	// OnFallback is called whenever a launch proceeds without a token
	// because the exchange failed.
	OnFallback func(ctx context.Context, app sso.Application, err error)
	Logger     *slog.Logger
	Metrics    metrics.Sink
}

// Bridge launches secondary applications and owns the SSO credential slot.
// It reads the primary credential but never writes the primary session.
type Bridge struct {
	dir        *Directory
	backend    ports.SSOBackend
	store      ports.TokenStore
	opener     ports.Opener
	timeout    time.Duration
	onFallback func(ctx context.Context, app sso.Application, err error)
	logger     *slog.Logger
	metrics    metrics.Sink
}

// NewBridge constructs a Bridge.
func NewBridge(opts BridgeOptions) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.ExchangeTimeout
	if timeout <= 0 {
		timeout = defaultExchangeTimeout
	}
	return &Bridge{
		dir:        opts.Directory,
		backend:    opts.Backend,
		store:      opts.Store,
		opener:     opts.Opener,
		timeout:    timeout,
		onFallback: opts.OnFallback,
		logger:     logger.With("component", "sso_bridge"),
		metrics:    opts.Metrics,
	}
}

// Bind returns a copy of b writing to store and opening through opener,
// sharing b's directory. HTTP handlers bind once per request.
func (b *Bridge) Bind(store ports.TokenStore, opener ports.Opener) *Bridge {
	cp := *b
	cp.store = store
	cp.opener = opener
	return &cp
}

// Directory returns the application cache.
func (b *Bridge) Directory() *Directory { return b.dir }

// RefreshApplications reloads p's application list with its primary credential.
func (b *Bridge) RefreshApplications(ctx context.Context, p Principal) error {
	primary, _ := credentialOf(p)
	return b.dir.Refresh(ctx, primary)
}

// ApplicationsLoaded reports whether p's application list is cached.
func (b *Bridge) ApplicationsLoaded(p Principal) bool {
	primary, _ := credentialOf(p)
	return b.dir.Loaded(primary)
}

// ForgetApplications drops the application list cached for primary.
func (b *Bridge) ForgetApplications(primary domainauth.Credential) {
	b.dir.Forget(primary)
}

// Applications lists the cached applications p may launch.
func (b *Bridge) Applications(p Principal) []sso.Application {
	var user *domainauth.User
	if p != nil {
		user = p.Snapshot().User
	}
	primary, _ := credentialOf(p)
	all := b.dir.Applications(primary)
	out := all[:0]
	for _, a := range all {
		if domainauth.CanAccessApplication(user, a.ID) {
			out = append(out, a)
		}
	}
	return out
}

// Launch opens application appID for p. When the application requires auth
// the primary credential is exchanged for an application token; if that
// exchange fails the bare URL is opened instead and the failure only logged.
// Returned errors are limited to lookup, authorization and opener failures.
func (b *Bridge) Launch(ctx context.Context, p Principal, appID string) (sso.Launch, error) {
	launch := sso.Launch{Trace: []sso.LaunchState{sso.LaunchIdle}}

	var user *domainauth.User
	if p != nil {
		user = p.Snapshot().User
	}
	if user == nil {
		return launch, ErrNotAuthenticated
	}

	app, err := b.lookup(ctx, p, appID)
	if err != nil {
		return launch, err
	}
	launch.Application = app
	if !domainauth.CanAccessApplication(user, app.ID) {
		return launch, fmt.Errorf("%w: %s", ErrForbidden, app.ID)
	}

	var token domainauth.Credential
	result := metrics.ResultSuccess
	var exchangeErr error
	var elapsed time.Duration
	if app.RequiresAuth {
		launch.Trace = append(launch.Trace, sso.LaunchResolvingToken)
		start := time.Now()
		token, exchangeErr = b.exchange(ctx, p, app)
		elapsed = time.Since(start)
		if exchangeErr != nil {
			launch.Trace = append(launch.Trace, sso.LaunchFailed)
			result = metrics.ResultFallback
			token = ""
			b.logger.WarnContext(ctx, "application token exchange failed, launching without token",
				"application", app.ID, "error", exchangeErr)
			if b.onFallback != nil {
				b.onFallback(ctx, app, exchangeErr)
			}
		}
	}

	target, err := launchURL(app.URL, token)
	if err != nil {
		return launch, fmt.Errorf("application %s: %w", app.ID, err)
	}
	launch.URL = target
	launch.TokenAttached = !token.IsZero()
	launch.Trace = append(launch.Trace, sso.LaunchLaunched)

	metrics.EmitLaunch(b.metrics, metrics.LaunchMetric{
		Application: app.ID,
		Result:      result,
		Exchange:    elapsed,
		Err:         exchangeErr,
	})

	if b.opener != nil {
		if err := b.opener.Open(ctx, target); err != nil {
			return launch, fmt.Errorf("open application %s: %w", app.ID, err)
		}
	}
	b.logger.InfoContext(ctx, "application launched",
		"application", app.ID, "token_attached", launch.TokenAttached)
	return launch, nil
}

// lookup finds appID, refreshing the directory once if it is missing.
func (b *Bridge) lookup(ctx context.Context, p Principal, appID string) (sso.Application, error) {
	primary, _ := credentialOf(p)
	if app, ok := b.dir.Lookup(primary, appID); ok {
		return app, nil
	}
	if err := b.dir.Refresh(ctx, primary); err != nil {
		b.logger.WarnContext(ctx, "directory refresh during launch failed", "application", appID, "error", err)
	}
	if app, ok := b.dir.Lookup(primary, appID); ok {
		return app, nil
	}
	return sso.Application{}, fmt.Errorf("%w: %q", ErrUnknownApplication, appID)
}

// exchange mints an application token and stores it in the SSO slot.
func (b *Bridge) exchange(ctx context.Context, p Principal, app sso.Application) (domainauth.Credential, error) {
	primary, ok := credentialOf(p)
	if !ok {
		return "", errors.New("no primary credential to exchange")
	}

	ectx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	token, err := b.backend.MintAppToken(ectx, primary, app.ID)
	if err != nil {
		return "", err
	}
	if token.IsZero() {
		return "", errors.New("backend returned an empty application token")
	}
	if b.store != nil {
		if err := b.store.Set(ctx, token); err != nil {
			// The token is still usable for this launch.
			b.logger.WarnContext(ctx, "failed to store application token", "application", app.ID, "error", err)
		}
	}
	return token, nil
}

// SignIn authenticates against the SSO login endpoint and stores the
// returned token in the SSO slot. The primary session is untouched.
func (b *Bridge) SignIn(ctx context.Context, email, password string) (ports.LoginResult, error) {
	email = strings.TrimSpace(email)
	res, err := b.backend.Login(ctx, email, password)
	metrics.EmitLogin(b.metrics, "sso", err)
	if err != nil {
		return ports.LoginResult{}, fmt.Errorf("sso sign-in: %w", err)
	}
	if res.AccessToken.IsZero() {
		return ports.LoginResult{}, errors.New("sso sign-in: backend returned no token")
	}
	if b.store != nil {
		if err := b.store.Set(ctx, res.AccessToken); err != nil {
			return ports.LoginResult{}, fmt.Errorf("store sso token: %w", err)
		}
	}
	return res, nil
}

// Validate checks the stored SSO token with the backend. Without a stored
// token it reports invalid without a network call.
func (b *Bridge) Validate(ctx context.Context) (ports.ValidateResult, error) {
	if b.store == nil {
		return ports.ValidateResult{}, nil
	}
	tok, ok := b.store.Get(ctx)
	if !ok {
		return ports.ValidateResult{}, nil
	}
	res, err := b.backend.Validate(ctx, tok)
	if err != nil {
		return ports.ValidateResult{}, fmt.Errorf("validate sso token: %w", err)
	}
	return res, nil
}

// SignOut clears the SSO slot only.
func (b *Bridge) SignOut(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	if err := b.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear sso token: %w", err)
	}
	return nil
}

func credentialOf(p Principal) (domainauth.Credential, bool) {
	if p == nil {
		return "", false
	}
	return p.Credential()
}

// launchURL appends token as the token query parameter, keeping any
// existing query. An empty token leaves raw unchanged apart from validation.
func launchURL(raw string, token domainauth.Credential) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid application url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid application url scheme %q", u.Scheme)
	}
	if token.IsZero() {
		return u.String(), nil
	}
	q := u.Query()
	q.Set(TokenParam, string(token))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
