package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/observability/metrics"
)

func TestRequireSession_BrowserRedirectsToSignIn(t *testing.T) {
	f := newFixture(t)

	rec := f.serve(browserGet("/?tab=apps"))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/signin?redirect_uri=%2F%3Ftab%3Dapps", rec.Header().Get("Location"))
}

func TestRequireSession_HTMXGetsHXRedirect(t *testing.T) {
	f := newFixture(t)

	req := browserGet("/")
	req.Header.Set("Hx-Request", "true")
	req.Header.Set("Hx-Current-Url", "https://portal.example.com/?section=org")
	rec := f.serve(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/signin?redirect_uri=%2F%3Fsection%3Dorg", rec.Header().Get("Hx-Redirect"))
}

func TestRequireSession_APIGets401(t *testing.T) {
	f := newFixture(t)

	rec := f.serve(apiGet("/api/me"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.Contains(t, rec.Body.String(), "authentication_required")
}

func TestRequireSession_RejectedCredentialIsAnonymous(t *testing.T) {
	f := newFixture(t)

	rec := f.serve(withCredential(apiGet("/api/me"), "revoked-token"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSession_AllowsResolvedUser(t *testing.T) {
	f := newFixture(t)

	rec := f.serve(withCredential(apiGet("/api/me"), credEmployee))

	require.Equal(t, http.StatusOK, rec.Code)
	var body meResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.User)
	assert.Equal(t, "3", body.User.ID)
	assert.Equal(t, domainauth.RoleEmployee, body.Role)
	assert.Contains(t, body.Capabilities, domainauth.CapAccessApplication)
	assert.NotContains(t, body.Capabilities, domainauth.CapManageEmployees)
}

func TestRequireSession_PendingRendersLoadingPage(t *testing.T) {
	f := newFixture(t)
	f.sessions.WaitTimeout = 20 * time.Millisecond
	release := f.users.Hold(credEmployee)
	defer release()

	rec := f.serve(withCredential(browserGet("/"), credEmployee))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `http-equiv="refresh"`)
	assert.Contains(t, rec.Body.String(), `id="loading"`)
	assert.Empty(t, rec.Header().Get("Location"))
}

func TestRequireSession_PendingAPIGets503(t *testing.T) {
	f := newFixture(t)
	f.sessions.WaitTimeout = 20 * time.Millisecond
	release := f.users.Hold(credEmployee)
	defer release()

	rec := f.serve(withCredential(apiGet("/api/me"), credEmployee))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "session_resolving")
}

func TestRequireCapability(t *testing.T) {
	renderer, err := NewTemplateRenderer(discardLogger())
	require.NoError(t, err)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RequireCapability(domainauth.CapManageEmployees, renderer)(ok)

	f := newFixture(t)
	guarded := RequireSession(SessionGuardConfig{Sessions: f.sessions, Renderer: renderer, Logger: discardLogger()})(h)

	tests := []struct {
		name   string
		cred   domainauth.Credential
		accept string
		want   int
		body   string
	}{
		{name: "super admin allowed", cred: credSuperAdmin, accept: "application/json", want: http.StatusNoContent},
		{name: "employee api forbidden", cred: credEmployee, accept: "application/json", want: http.StatusForbidden, body: "insufficient_permissions"},
		{name: "employee browser denied page", cred: credEmployee, accept: "text/html", want: http.StatusForbidden, body: `id="denied"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/employees", nil)
			req.Header.Set("Accept", tt.accept)
			rec := httptest.NewRecorder()
			guarded.ServeHTTP(rec, withCredential(req, tt.cred))

			assert.Equal(t, tt.want, rec.Code)
			if tt.body != "" {
				assert.Contains(t, rec.Body.String(), tt.body)
			}
		})
	}
}

func TestRequireCapability_WithoutSession(t *testing.T) {
	h := RequireCapability(domainauth.CapViewOrgChart, nil)(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, apiGet("/api/org"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecover_RendersRecoveryScreen(t *testing.T) {
	renderer, err := NewTemplateRenderer(discardLogger())
	require.NoError(t, err)
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("render failed") })
	h := Recover(discardLogger(), renderer)(boom)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, browserGet("/"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `id="recovery"`)
	assert.Contains(t, body, `action="/auth/reset"`)
	assert.Equal(t, 1, strings.Count(body, "<form"), "recovery screen offers a single action")
}

func TestRecover_APIGetsJSON(t *testing.T) {
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("nil map") })
	h := Recover(discardLogger(), nil)(boom)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, apiGet("/api/me"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal_error","message":"internal server error"}`, rec.Body.String())
}

func TestRecover_HTMXReloadsIntoRecovery(t *testing.T) {
	renderer, err := NewTemplateRenderer(discardLogger())
	require.NoError(t, err)
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("fragment failed") })
	h := Recover(discardLogger(), renderer)(boom)

	req := browserGet("/")
	req.Header.Set("Hx-Request", "true")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/auth/recover", rec.Header().Get("Hx-Redirect"))
}

func TestLogging_TagsMatchedRoute(t *testing.T) {
	sink := &recordingSink{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /apps/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })
	h := Logging(discardLogger(), sink)(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/apps/naruku", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	got := sink.find("timing", metrics.NameHTTPRequest)
	require.Len(t, got, 2)
	assert.Equal(t, "GET /apps/{id}", got[0].tags["route"])
	assert.Equal(t, "2xx", got[0].tags["status"])
	assert.Equal(t, "unmatched", got[1].tags["route"])
	assert.Equal(t, "4xx", got[1].tags["status"])
}

func TestBrowserDetection(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		accept string
		htmx   bool
		want   bool
	}{
		{name: "html page", path: "/", accept: "text/html", want: true},
		{name: "no accept header", path: "/signin", want: true},
		{name: "api prefix", path: "/api/me", accept: "text/html", want: false},
		{name: "json client", path: "/auth/status", accept: "application/json", want: false},
		{name: "htmx", path: "/apps/naruku/launch", accept: "*/*", htmx: true, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			if tt.htmx {
				req.Header.Set("Hx-Request", "true")
			}
			var got bool
			BrowserDetection()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = IsBrowserRequest(r)
			})).ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}
