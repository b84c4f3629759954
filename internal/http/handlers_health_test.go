package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func serveHealth(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %q", ct)
	}
	return rec
}

func TestHealthz_AlwaysLive(t *testing.T) {
	rec := serveHealth(t, healthHandler{}, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if body := rec.Body.String(); body != `{"status":"ok"}` {
		t.Fatalf("unexpected body: %q", body)
	}

	head := serveHealth(t, healthHandler{}, http.MethodHead, "/healthz")
	if head.Code != http.StatusOK || head.Body.Len() != 0 {
		t.Fatalf("HEAD /healthz = %d with %d bytes", head.Code, head.Body.Len())
	}
}

func TestReadyz_ReportsSlotBackend(t *testing.T) {
	var down error
	h := healthHandler{check: func(context.Context) error { return down }}

	rec := serveHealth(t, h, http.MethodGet, "/readyz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d", rec.Code)
	}

	down = errors.New("dial tcp: connection refused")
	rec = serveHealth(t, h, http.MethodGet, "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
	if body := rec.Body.String(); body != `{"status":"unavailable"}` {
		t.Fatalf("check error must not leak, got %q", body)
	}

	head := serveHealth(t, h, http.MethodHead, "/readyz")
	if head.Code != http.StatusServiceUnavailable || head.Body.Len() != 0 {
		t.Fatalf("HEAD /readyz = %d with %d bytes", head.Code, head.Body.Len())
	}
}

func TestReadyz_BoundsSlowCheck(t *testing.T) {
	h := healthHandler{
		timeout: 20 * time.Millisecond,
		check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}

	start := time.Now()
	rec := serveHealth(t, h, http.MethodGet, "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("readiness check was not bounded: %s", elapsed)
	}
}
