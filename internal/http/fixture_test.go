package httpx

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peopleops/hrportal/internal/adapters/tokenstore"
	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/domain/sso"
	mockauth "github.com/peopleops/hrportal/internal/mocks/auth"
	"github.com/peopleops/hrportal/internal/ports"
	"github.com/peopleops/hrportal/internal/service"
	"github.com/peopleops/hrportal/internal/service/session"
	"github.com/peopleops/hrportal/internal/service/ssobridge"
)

const (
	credEmployee   domainauth.Credential = "employee-token"
	credSuperAdmin domainauth.Credential = "superadmin-token"
	testCSRF                             = "csrf-test-token"
)

var (
	employee = domainauth.User{
		ID: "3", Username: "employee", Email: "employee@hrportal.local", Role: domainauth.RoleEmployee,
		Profile: domainauth.Profile{FirstName: "Lena", LastName: "Park"},
	}
	superAdmin = domainauth.User{
		ID: "1", Username: "superadmin", Email: "superadmin@hrportal.local", Role: domainauth.RoleSuperAdmin,
		Profile: domainauth.Profile{FirstName: "Sofia", LastName: "Reyes"},
	}
)

type recordedMetric struct {
	kind string
	name string
	tags map[string]string
}

type recordingSink struct {
	mu      sync.Mutex
	metrics []recordedMetric
}

func (s *recordingSink) record(kind, name string, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, recordedMetric{kind: kind, name: name, tags: tags})
}

func (s *recordingSink) Count(name string, _ int64, tags map[string]string) {
	s.record("count", name, tags)
}

func (s *recordingSink) Gauge(name string, _ float64, tags map[string]string) {
	s.record("gauge", name, tags)
}

func (s *recordingSink) Timing(name string, _ time.Duration, tags map[string]string) {
	s.record("timing", name, tags)
}

func (s *recordingSink) find(kind, name string) []recordedMetric {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []recordedMetric
	for _, m := range s.metrics {
		if m.kind == kind && m.name == name {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	users    *mockauth.StubUsers
	backend  *mockauth.FakeSSOBackend
	provider *mockauth.MockAuthProvider
	sessions *Sessions
	bridge   *ssobridge.Bridge
	renderer *TemplateRenderer
	sink     *recordingSink
	router   http.Handler
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := discardLogger()

	users := mockauth.NewStubUsers().
		Add(credEmployee, employee).
		Add(credSuperAdmin, superAdmin).
		Add("mock-access-token", employee)
	backend := &mockauth.FakeSSOBackend{
		Apps: []sso.Application{
			{ID: "naruku", Name: "Naruku", URL: "https://naruku.example.com/sso", RequiresAuth: true},
			{ID: "payroll", Name: "Payroll", URL: "https://payroll.example.com/", RequiresAuth: true},
		},
		LoginToken: credEmployee,
	}
	provider := mockauth.NewMockAuthProvider()

	resolver := session.NewResolver(session.ResolverOptions{
		Users:   users,
		Timeout: 500 * time.Millisecond,
		Logger:  logger,
	})
	sink := &recordingSink{}
	sessions := &Sessions{
		Stores:      tokenstore.CookieSlots{},
		Factory:     session.Factory{Resolver: resolver, Logger: logger, Metrics: sink},
		WaitTimeout: time.Second,
	}
	bridge := ssobridge.NewBridge(ssobridge.BridgeOptions{
		Directory: ssobridge.NewDirectory(ssobridge.DirectoryOptions{Backend: backend, Logger: logger}),
		Backend:   backend,
		Logger:    logger,
		Metrics:   sink,
	})
	authSvc := service.NewAuthService(service.AuthServiceOptions{
		Provider: provider,
		Backend:  backend,
		Method:   service.MethodMock,
		Logger:   logger,
		Metrics:  sink,
	})
	renderer, err := NewTemplateRenderer(logger)
	require.NoError(t, err)

	router, err := NewRouter(RouterServices{
		Auth:     authSvc,
		Bridge:   bridge,
		Sessions: sessions,
		Renderer: renderer,
		Metrics:  sink,
		Logger:   logger,
	})
	require.NoError(t, err)

	return &fixture{
		users:    users,
		backend:  backend,
		provider: provider,
		sessions: sessions,
		bridge:   bridge,
		renderer: renderer,
		sink:     sink,
		router:   router,
	}
}

func (f *fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func withCredential(req *http.Request, cred domainauth.Credential) *http.Request {
	req.AddCookie(&http.Cookie{Name: ports.SlotPrimary, Value: string(cred)})
	return req
}

func withSSOCredential(req *http.Request, cred domainauth.Credential) *http.Request {
	req.AddCookie(&http.Cookie{Name: ports.SlotSSO, Value: string(cred)})
	return req
}

// withCSRF sets a matching cookie and header.
func withCSRF(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: testCSRF})
	req.Header.Set(DefaultCSRFHeaderName, testCSRF)
	return req
}

// postForm builds a browser form post carrying the CSRF token as a form field.
func postForm(path string, form url.Values) *http.Request {
	if form == nil {
		form = url.Values{}
	}
	form.Set(DefaultCSRFCookieName, testCSRF)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")
	req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: testCSRF})
	return req
}

func browserGet(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return req
}

func apiGet(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Accept", "application/json")
	return req
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
