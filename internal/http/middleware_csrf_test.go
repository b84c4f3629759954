package httpx

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func csrfEcho() http.Handler {
	return CSRFProtection(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetCSRFToken(r)))
	}))
}

func TestCSRF_IssuesCookieOnSafeRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	csrfEcho().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/signin", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	ck := responseCookie(rec, DefaultCSRFCookieName)
	require.NotNil(t, ck)
	assert.NotEmpty(t, ck.Value)
	assert.False(t, ck.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, ck.SameSite)
	assert.Equal(t, ck.Value, rec.Body.String(), "token is exposed to templates")
}

func TestCSRF_ReusesExistingCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: testCSRF})
	rec := httptest.NewRecorder()
	csrfEcho().ServeHTTP(rec, req)

	assert.Nil(t, responseCookie(rec, DefaultCSRFCookieName))
	assert.Equal(t, testCSRF, rec.Body.String())
}

func TestCSRF_Validation(t *testing.T) {
	formBody := func(token string) *http.Request {
		form := url.Values{"csrf_token": {token}}
		req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	}

	tests := []struct {
		name  string
		req   func() *http.Request
		allow bool
	}{
		{name: "header matches", allow: true, req: func() *http.Request {
			return withCSRF(httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
		}},
		{name: "form field matches", allow: true, req: func() *http.Request {
			req := formBody(testCSRF)
			req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: testCSRF})
			return req
		}},
		{name: "header mismatch", req: func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
			req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: testCSRF})
			req.Header.Set(DefaultCSRFHeaderName, "other")
			return req
		}},
		{name: "form mismatch", req: func() *http.Request {
			req := formBody("other")
			req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: testCSRF})
			return req
		}},
		{name: "no cookie", req: func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
			req.Header.Set(DefaultCSRFHeaderName, testCSRF)
			return req
		}},
		{name: "nothing submitted", req: func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
			req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: testCSRF})
			return req
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			csrfEcho().ServeHTTP(rec, tt.req())

			if tt.allow {
				assert.Equal(t, http.StatusOK, rec.Code)
				return
			}
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Contains(t, rec.Body.String(), "csrf_failed")
		})
	}
}

func TestCSRF_SecureBehindTLSProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	csrfEcho().ServeHTTP(rec, req)

	ck := responseCookie(rec, DefaultCSRFCookieName)
	require.NotNil(t, ck)
	assert.True(t, ck.Secure)
}
