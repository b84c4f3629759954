package ssobridge

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/peopleops/hrportal/internal/adapters/tokenstore"
	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/domain/sso"
	apperrors "github.com/peopleops/hrportal/internal/errors"
	"github.com/peopleops/hrportal/internal/mocks"
	mockauth "github.com/peopleops/hrportal/internal/mocks/auth"
	"github.com/peopleops/hrportal/internal/observability/metrics"
)

type stubPrincipal struct {
	cred domainauth.Credential
	user *domainauth.User
}

func (p stubPrincipal) Snapshot() domainauth.Snapshot {
	state := domainauth.StateAnonymous
	if p.user != nil {
		state = domainauth.StateAuthenticated
	}
	return domainauth.Snapshot{HasCredential: !p.cred.IsZero(), User: p.user, State: state}
}

func (p stubPrincipal) Credential() (domainauth.Credential, bool) {
	return p.cred, !p.cred.IsZero()
}

func principal(role domainauth.Role) stubPrincipal {
	return stubPrincipal{
		cred: "primary-token",
		user: &domainauth.User{ID: "7", Username: "jdoe", Role: role},
	}
}

type fallbackCall struct {
	app sso.Application
	err error
}

type countingSink struct {
	mu     sync.Mutex
	counts map[string][]map[string]string
}

func (c *countingSink) Count(name string, _ int64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string][]map[string]string{}
	}
	c.counts[name] = append(c.counts[name], tags)
}
func (c *countingSink) Gauge(string, float64, map[string]string) {}
func (c *countingSink) Timing(string, time.Duration, map[string]string) {}

type bridgeFixture struct {
	backend   *mockauth.FakeSSOBackend
	store     *tokenstore.Memory
	opener    *mockauth.RecordingOpener
	sink      *countingSink
	fallbacks []fallbackCall
	bridge    *Bridge
}

func newBridgeFixture(apps ...sso.Application) *bridgeFixture {
	f := &bridgeFixture{
		backend: &mockauth.FakeSSOBackend{Apps: apps},
		store:   tokenstore.NewMemory(),
		opener:  &mockauth.RecordingOpener{},
		sink:    &countingSink{},
	}
	f.bridge = NewBridge(BridgeOptions{
		Directory: NewDirectory(DirectoryOptions{Backend: f.backend}),
		Backend:   f.backend,
		Store:     f.store,
		Opener:    f.opener,
		OnFallback: func(_ context.Context, app sso.Application, err error) {
			f.fallbacks = append(f.fallbacks, fallbackCall{app: app, err: err})
		},
		Metrics: f.sink,
	})
	return f
}

func TestLaunch_AttachesExchangedToken(t *testing.T) {
	f := newBridgeFixture(naruku)

	launch, err := f.bridge.Launch(context.Background(), principal(domainauth.RoleEmployee), "Naruku")
	require.NoError(t, err)

	assert.True(t, launch.TokenAttached)
	assert.False(t, launch.Fallback())
	assert.Equal(t, []sso.LaunchState{sso.LaunchIdle, sso.LaunchResolvingToken, sso.LaunchLaunched}, launch.Trace)
	assert.Equal(t, "https://naruku.example.com/app?token=app-naruku", launch.URL)
	assert.Equal(t, []string{launch.URL}, f.opener.URLs())

	stored, ok := f.store.Get(context.Background())
	require.True(t, ok)
	assert.Equal(t, domainauth.Credential("app-naruku"), stored)
	assert.Empty(t, f.fallbacks)
}

func TestLaunch_ExchangeFailureFallsBackToBareURL(t *testing.T) {
	f := newBridgeFixture(naruku)
	f.backend.MintErr = apperrors.FromStatus(500, "mint failed")

	launch, err := f.bridge.Launch(context.Background(), principal(domainauth.RoleAdmin), "naruku")
	require.NoError(t, err, "exchange failures must not reach the caller")

	assert.False(t, launch.TokenAttached)
	assert.True(t, launch.Fallback())
	assert.Equal(t, []sso.LaunchState{sso.LaunchIdle, sso.LaunchResolvingToken, sso.LaunchFailed, sso.LaunchLaunched}, launch.Trace)
	assert.Equal(t, naruku.URL, launch.URL)
	assert.Equal(t, []string{naruku.URL}, f.opener.URLs())

	require.Len(t, f.fallbacks, 1)
	assert.Equal(t, "naruku", f.fallbacks[0].app.ID)
	assert.Error(t, f.fallbacks[0].err)

	_, ok := f.store.Get(context.Background())
	assert.False(t, ok, "no token is stored on fallback")

	launches := f.sink.counts[metrics.NameLaunch]
	require.Len(t, launches, 1)
	assert.Equal(t, metrics.ResultFallback, launches[0]["result"])
}

func TestLaunch_ExchangeTimeoutFallsBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockSSOBackend(ctrl)
	backend.EXPECT().ListApplications(gomock.Any(), gomock.Any()).Return([]sso.Application{naruku}, nil)
	backend.EXPECT().MintAppToken(gomock.Any(), domainauth.Credential("primary-token"), "naruku").
		DoAndReturn(func(ctx context.Context, _ domainauth.Credential, _ string) (domainauth.Credential, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})

	opener := &mockauth.RecordingOpener{}
	var hookErr error
	b := NewBridge(BridgeOptions{
		Directory:       NewDirectory(DirectoryOptions{Backend: backend}),
		Backend:         backend,
		Opener:          opener,
		ExchangeTimeout: 20 * time.Millisecond,
		OnFallback:      func(_ context.Context, _ sso.Application, err error) { hookErr = err },
	})

	launch, err := b.Launch(context.Background(), principal(domainauth.RoleSuperAdmin), "naruku")
	require.NoError(t, err)
	assert.True(t, launch.Fallback())
	assert.ErrorIs(t, hookErr, context.DeadlineExceeded)
	assert.Equal(t, []string{naruku.URL}, opener.URLs())
}

func TestLaunch_NoAuthRequiredSkipsExchange(t *testing.T) {
	f := newBridgeFixture(wiki)

	launch, err := f.bridge.Launch(context.Background(), principal(domainauth.RoleSuperAdmin), "wiki")
	require.NoError(t, err)
	assert.Equal(t, []sso.LaunchState{sso.LaunchIdle, sso.LaunchLaunched}, launch.Trace)
	assert.Equal(t, wiki.URL, launch.URL)
	assert.Zero(t, f.backend.MintCalls())
}

func TestLaunch_KeepsExistingQuery(t *testing.T) {
	app := naruku
	app.URL = "https://naruku.example.com/app?lang=en"
	f := newBridgeFixture(app)

	launch, err := f.bridge.Launch(context.Background(), principal(domainauth.RoleEmployee), "naruku")
	require.NoError(t, err)
	u, err := url.Parse(launch.URL)
	require.NoError(t, err)
	assert.Equal(t, "en", u.Query().Get("lang"))
	assert.Equal(t, "app-naruku", u.Query().Get(TokenParam))
}

func TestLaunch_ForbiddenForRole(t *testing.T) {
	f := newBridgeFixture(naruku, payroll)

	_, err := f.bridge.Launch(context.Background(), principal(domainauth.RoleEmployee), "payroll")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, f.opener.URLs())
	assert.Zero(t, f.backend.MintCalls())

	_, err = f.bridge.Launch(context.Background(), principal(domainauth.RoleSuperAdmin), "payroll")
	assert.NoError(t, err)
}

func TestLaunch_UnknownApplicationRefreshesOnce(t *testing.T) {
	f := newBridgeFixture(naruku)

	_, err := f.bridge.Launch(context.Background(), principal(domainauth.RoleSuperAdmin), "crm")
	assert.ErrorIs(t, err, ErrUnknownApplication)
	assert.Equal(t, 1, f.backend.ListCalls())

	// A cached hit does not refetch.
	_, err = f.bridge.Launch(context.Background(), principal(domainauth.RoleSuperAdmin), "naruku")
	require.NoError(t, err)
	assert.Equal(t, 1, f.backend.ListCalls())
}

func TestLaunch_RequiresAuthenticatedPrincipal(t *testing.T) {
	f := newBridgeFixture(naruku)

	_, err := f.bridge.Launch(context.Background(), stubPrincipal{}, "naruku")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = f.bridge.Launch(context.Background(), nil, "naruku")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Zero(t, f.backend.ListCalls())
}

func TestLaunch_OpenerErrorIsReturned(t *testing.T) {
	f := newBridgeFixture(naruku)
	f.opener.Err = errors.New("popup blocked")

	launch, err := f.bridge.Launch(context.Background(), principal(domainauth.RoleEmployee), "naruku")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "popup blocked")
	assert.NotEmpty(t, launch.URL)
}

func TestLaunch_InvalidApplicationURL(t *testing.T) {
	app := wiki
	app.URL = "javascript:alert(1)"
	f := newBridgeFixture(app)

	_, err := f.bridge.Launch(context.Background(), principal(domainauth.RoleSuperAdmin), "wiki")
	require.Error(t, err)
	assert.Empty(t, f.opener.URLs())
}

func TestApplications_FiltersByRole(t *testing.T) {
	f := newBridgeFixture(naruku, payroll, wiki)
	require.NoError(t, f.bridge.RefreshApplications(context.Background(), principal(domainauth.RoleEmployee)))

	got := f.bridge.Applications(principal(domainauth.RoleEmployee))
	require.Len(t, got, 1)
	assert.Equal(t, "naruku", got[0].ID)
	assert.Len(t, f.bridge.Applications(principal(domainauth.RoleSuperAdmin)), 3)
	assert.Empty(t, f.bridge.Applications(nil))
}

func TestApplications_EachPrincipalSeesItsOwnList(t *testing.T) {
	f := newBridgeFixture()
	f.backend.AppsFor = map[domainauth.Credential][]sso.Application{
		"alice-token": {naruku, payroll},
		"bob-token":   {naruku},
	}
	alice := stubPrincipal{cred: "alice-token", user: &domainauth.User{ID: "1", Role: domainauth.RoleSuperAdmin}}
	bob := stubPrincipal{cred: "bob-token", user: &domainauth.User{ID: "2", Role: domainauth.RoleSuperAdmin}}

	require.NoError(t, f.bridge.RefreshApplications(context.Background(), alice))
	assert.True(t, f.bridge.ApplicationsLoaded(alice))
	assert.False(t, f.bridge.ApplicationsLoaded(bob))

	require.NoError(t, f.bridge.RefreshApplications(context.Background(), bob))
	assert.Len(t, f.bridge.Applications(alice), 2)
	assert.Equal(t, []sso.Application{naruku}, f.bridge.Applications(bob))

	_, err := f.bridge.Launch(context.Background(), bob, "payroll")
	assert.ErrorIs(t, err, ErrUnknownApplication, "an application from another session's list is not launchable")

	f.bridge.ForgetApplications("alice-token")
	assert.False(t, f.bridge.ApplicationsLoaded(alice))
}

func TestSignIn_StoresSSOTokenOnly(t *testing.T) {
	f := newBridgeFixture()
	f.backend.LoginToken = "sso-abc"
	primary := tokenstore.NewMemory()
	require.NoError(t, primary.Set(context.Background(), "primary-token"))

	res, err := f.bridge.SignIn(context.Background(), " jdoe@example.com ", "secret")
	require.NoError(t, err)
	assert.Equal(t, domainauth.Credential("sso-abc"), res.AccessToken)

	stored, _ := f.store.Get(context.Background())
	assert.Equal(t, domainauth.Credential("sso-abc"), stored)

	require.NoError(t, f.bridge.SignOut(context.Background()))
	_, ok := f.store.Get(context.Background())
	assert.False(t, ok)
	still, _ := primary.Get(context.Background())
	assert.Equal(t, domainauth.Credential("primary-token"), still)
}

func TestSignIn_BackendError(t *testing.T) {
	f := newBridgeFixture()
	f.backend.LoginErr = apperrors.Unauthorized("bad credentials")

	_, err := f.bridge.SignIn(context.Background(), "jdoe@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
	_, ok := f.store.Get(context.Background())
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	f := newBridgeFixture()
	f.backend.ValidTokens = map[domainauth.Credential]domainauth.User{
		"sso-ok": {ID: "7", Role: domainauth.RoleEmployee},
	}

	res, err := f.bridge.Validate(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Valid, "no stored token")

	require.NoError(t, f.store.Set(context.Background(), "sso-ok"))
	res, err = f.bridge.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Valid)
	require.NotNil(t, res.User)
	assert.Equal(t, "7", res.User.ID)

	require.NoError(t, f.store.Set(context.Background(), "sso-stale"))
	res, err = f.bridge.Validate(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestBind_SharesDirectory(t *testing.T) {
	f := newBridgeFixture(naruku)
	other := tokenstore.NewMemory()
	opener := &mockauth.RecordingOpener{}

	bound := f.bridge.Bind(other, opener)
	assert.Same(t, f.bridge.Directory(), bound.Directory())

	_, err := bound.Launch(context.Background(), principal(domainauth.RoleEmployee), "naruku")
	require.NoError(t, err)
	tok, ok := other.Get(context.Background())
	require.True(t, ok)
	assert.Equal(t, domainauth.Credential("app-naruku"), tok)
	_, ok = f.store.Get(context.Background())
	assert.False(t, ok)
	assert.Len(t, opener.URLs(), 1)
	assert.Empty(t, f.opener.URLs())
}
