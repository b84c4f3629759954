package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	healthResponse      = `{"status":"ok"}`
	unavailableResponse = `{"status":"unavailable"}`

	defaultReadyTimeout = 2 * time.Second
)

// ReadinessCheck reports whether the credential slot backend answers.
type ReadinessCheck func(ctx context.Context) error

// healthHandler serves /healthz (no check, liveness) and /readyz.
type healthHandler struct {
	check   ReadinessCheck
	timeout time.Duration
	logger  *slog.Logger
}

func (h healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, body := http.StatusOK, healthResponse
	if h.check != nil {
		timeout := h.timeout
		if timeout <= 0 {
			timeout = defaultReadyTimeout
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		err := h.check(ctx)
		cancel()
		if err != nil {
			if h.logger != nil {
				h.logger.WarnContext(r.Context(), "readiness check failed", "error", err)
			}
			status, body = http.StatusServiceUnavailable, unavailableResponse
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	// Nothing more to do if the client connection is gone.
	_, _ = io.WriteString(w, body)
}
