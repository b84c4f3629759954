package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/domain/sso"
	apperrors "github.com/peopleops/hrportal/internal/errors"
	"github.com/peopleops/hrportal/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider = (*MockAuthProvider)(nil)
	_ ports.UserResolver = (*StubUsers)(nil)
	_ ports.Navigator    = (*RecordingNavigator)(nil)
	_ ports.Opener       = (*RecordingOpener)(nil)
	_ ports.SSOBackend   = (*FakeSSOBackend)(nil)
)

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	AuthURL     string
	StatePrefix string
	NoncePrefix string
	DefaultUser domainauth.Identity

	mu        sync.Mutex
	callCount int
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
		DefaultUser: defaultIdentity(),
	}
}

func defaultIdentity() domainauth.Identity {
	return domainauth.Identity{
		UserID:      "mock-user-1",
		FirstName:   "Mock",
		LastName:    "User",
		Email:       "mock.user@example.com",
		Groups:      []string{"employees"},
		AccessToken: "mock-access-token",
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	statePrefix := m.StatePrefix
	if statePrefix == "" {
		statePrefix = "state"
	}
	noncePrefix := m.NoncePrefix
	if noncePrefix == "" {
		noncePrefix = "nonce"
	}
	return authURL, fmt.Sprintf("%s-%d", statePrefix, n), fmt.Sprintf("%s-%d", noncePrefix, n), nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	id := m.DefaultUser
	if id.UserID == "" {
		id = defaultIdentity()
	}
	id.ExpiresAt = time.Now().Add(time.Hour)
	return id, nil
}

// StubUsers resolves credentials from a fixed table. Unknown credentials get
// an unauthorized error. Hold lets a test keep a lookup in flight.
type StubUsers struct {
	mu    sync.Mutex
	users map[domainauth.Credential]domainauth.User
	gates map[domainauth.Credential]chan struct{}
	calls []domainauth.Credential
	// Started receives every credential as its lookup begins, if non-nil.
	Started chan domainauth.Credential
}

// NewStubUsers returns an empty table.
func NewStubUsers() *StubUsers {
	return &StubUsers{
		users: map[domainauth.Credential]domainauth.User{},
		gates: map[domainauth.Credential]chan struct{}{},
	}
}

// Add registers u for cred.
func (s *StubUsers) Add(cred domainauth.Credential, u domainauth.User) *StubUsers {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[cred] = u
	return s
}

// Hold blocks lookups of cred until the returned release func is called.
func (s *StubUsers) Hold(cred domainauth.Credential) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gates[cred] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns the credentials looked up so far, in order.
func (s *StubUsers) Calls() []domainauth.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domainauth.Credential(nil), s.calls...)
}

func (s *StubUsers) CurrentUser(ctx context.Context, cred domainauth.Credential) (domainauth.User, error) {
	s.mu.Lock()
	s.calls = append(s.calls, cred)
	gate := s.gates[cred]
	started := s.Started
	s.mu.Unlock()

	if started != nil {
		started <- cred
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domainauth.User{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[cred]
	if !ok {
		return domainauth.User{}, apperrors.Unauthorized("token rejected")
	}
	return u, nil
}

// RecordingNavigator records every navigation.
type RecordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *RecordingNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

// Paths returns the navigations so far.
func (n *RecordingNavigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

// RecordingOpener records every opened URL and returns Err.
type RecordingOpener struct {
	mu   sync.Mutex
	urls []string
	Err  error
}

func (o *RecordingOpener) Open(_ context.Context, url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls = append(o.urls, url)
	return o.Err
}

// URLs returns the opened URLs so far.
func (o *RecordingOpener) URLs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.urls...)
}

// FakeSSOBackend serves a fixed directory and mints tokens named after the
// application. Set the *Err fields to simulate failures.
type FakeSSOBackend struct {
	Apps []sso.Application
	// AppsFor overrides Apps for specific primary credentials.
	AppsFor     map[domainauth.Credential][]sso.Application
	LoginToken  domainauth.Credential
	LoginUser   *domainauth.User
	LoginErr    error
	MintErr     error
	ListErr     error
	ValidTokens map[domainauth.Credential]domainauth.User

	mu        sync.Mutex
	mintCalls int
	listCalls int
}

func (f *FakeSSOBackend) Login(_ context.Context, email, password string) (ports.LoginResult, error) {
	if f.LoginErr != nil {
		return ports.LoginResult{}, f.LoginErr
	}
	if email == "" || password == "" {
		return ports.LoginResult{}, apperrors.Validation("email and password are required")
	}
	tok := f.LoginToken
	if tok == "" {
		tok = "login-token"
	}
	return ports.LoginResult{AccessToken: tok, User: f.LoginUser}, nil
}

func (f *FakeSSOBackend) Validate(_ context.Context, tok domainauth.Credential) (ports.ValidateResult, error) {
	u, ok := f.ValidTokens[tok]
	if !ok {
		return ports.ValidateResult{}, nil
	}
	return ports.ValidateResult{Valid: true, User: &u}, nil
}

func (f *FakeSSOBackend) MintAppToken(_ context.Context, primary domainauth.Credential, application string) (domainauth.Credential, error) {
	f.mu.Lock()
	f.mintCalls++
	f.mu.Unlock()
	if f.MintErr != nil {
		return "", f.MintErr
	}
	if primary.IsZero() {
		return "", apperrors.Unauthorized("no primary credential")
	}
	return domainauth.Credential("app-" + application), nil
}

func (f *FakeSSOBackend) ListApplications(_ context.Context, primary domainauth.Credential) ([]sso.Application, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	if apps, ok := f.AppsFor[primary]; ok {
		return append([]sso.Application(nil), apps...), nil
	}
	return append([]sso.Application(nil), f.Apps...), nil
}

// MintCalls reports how many exchanges were attempted.
func (f *FakeSSOBackend) MintCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mintCalls
}

// ListCalls reports how many directory fetches were made.
func (f *FakeSSOBackend) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}
