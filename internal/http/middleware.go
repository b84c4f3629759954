package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/observability/metrics"
	"github.com/peopleops/hrportal/internal/service/session"
)

// Logging returns a middleware that logs HTTP requests and responses and
// records their latency. The route tag is the matched mux pattern, so this
// middleware must receive the same *http.Request the mux does.
func Logging(logger *slog.Logger, sink metrics.Sink) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			d := time.Since(start)
			metrics.EmitHTTPRequest(sink, r.Method, route, ww.status, d)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", route),
				slog.Int("status", ww.status),
				slog.Duration("duration", d),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *respWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *respWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics, logs them and
// renders the recovery screen. Its only action resets both credential slots.
// API requests get a JSON 500 instead.
func Recover(logger *slog.Logger, renderer *TemplateRenderer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity, as net/http does
					panic(err)
				}
				logger.Error("panic",
					slog.Any("error", err),
					slog.String("path", r.URL.Path),
					slog.String("method", r.Method),
					slog.String("stack", string(debug.Stack())))

				if renderer == nil || !IsBrowserRequest(r) {
					WriteError(w, ErrorParams{
						Code:    http.StatusInternalServerError,
						ErrCode: "internal_error",
						Err:     errors.New("internal server error"),
					})
					return
				}
				if IsHTMX(r) {
					// Swapping the recovery screen into a fragment would leave the
					// broken page around it; reload the whole page instead.
					SetHXRedirect(w, "/auth/recover")
					w.WriteHeader(http.StatusOK)
					return
				}
				renderer.Render(w, r, http.StatusInternalServerError, PageRecovery, PageData{Title: "Something went wrong"})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// browserRequestKey is an unexported context key type for browser request detection.
type browserRequestKey struct{}

// BrowserDetection returns a middleware that detects browser requests vs API requests.
// It sets a context value that can be used by downstream handlers to determine
// whether to return HTML or JSON responses.
func BrowserDetection() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			isBrowser := isBrowserRequest(r)
			ctx := context.WithValue(r.Context(), browserRequestKey{}, isBrowser)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsBrowserRequest returns true if the current request is from a browser.
func IsBrowserRequest(r *http.Request) bool {
	if val := r.Context().Value(browserRequestKey{}); val != nil {
		if isBrowser, ok := val.(bool); ok {
			return isBrowser
		}
	}
	// Fallback to direct detection if middleware wasn't used
	return isBrowserRequest(r)
}

// isBrowserRequest determines if a request is from a browser based on:
// 1. Path prefix - API routes start with /api/
// 2. HTMX requests are considered browser requests
// 3. Accept header - browsers typically accept text/html.
func isBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	if IsHTMX(r) {
		return true
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		// No Accept header, assume browser for non-API routes
		return true
	}
	return strings.Contains(accept, "text/html")
}

// SessionGuardConfig configures RequireSession.
type SessionGuardConfig struct {
	Sessions   *Sessions
	Renderer   *TemplateRenderer
	SignInPath string // Optional: defaults to session.DefaultSignInPath
	Logger     *slog.Logger
}

// RequireSession returns a middleware that resolves the request's session
// and lets only authenticated users through. Anonymous browser requests are
// redirected to sign in, htmx requests get Hx-Redirect, API requests get a
// 401. A session still resolving when the wait budget runs out gets a
// loading page that refreshes itself (or a 503 for API requests).
func RequireSession(cfg SessionGuardConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	guard := session.NewGuard(session.GuardOptions{
		SignInPath: cfg.SignInPath,
		ServerSide: true,
		Logger:     logger,
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rs := cfg.Sessions.Open(w, r)
			// Cookie-backed slots write through w; nothing may touch them
			// once the handler has returned.
			defer rs.Auth.Drain()

			snap := cfg.Sessions.Resolve(r.Context(), rs)
			out := guard.Evaluate(snap)
			switch out.Decision {
			case session.Allow:
				next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), rs)))
			case session.Redirect:
				if IsBrowserRequest(r) {
					redirectToSignIn(w, r, guard.SignInPath())
					return
				}
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("authentication required"),
				})
			default:
				logger.DebugContext(r.Context(), "session still resolving", "path", r.URL.Path, "generation", snap.Generation)
				writePending(w, r, cfg.Renderer)
			}
		})
	}
}

// RequireCapability returns a middleware that requires the session user to
// hold capability c. It must run inside RequireSession.
func RequireCapability(c domainauth.Capability, renderer *TemplateRenderer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := CurrentUser(r.Context())
			if user == nil {
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("authentication required"),
				})
				return
			}
			if !domainauth.Allows(user, c) {
				showAccessDenied(w, r, renderer, user)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// redirectToSignIn sends a browser to the sign-in page with the current URL as redirect_uri.
func redirectToSignIn(w http.ResponseWriter, r *http.Request, signInPath string) {
	target := signInURL(signInPath, redirectPathForRequest(r))
	if IsHTMX(r) {
		SetHXRedirect(w, target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

const pendingRefreshSeconds = 1

func writePending(w http.ResponseWriter, r *http.Request, renderer *TemplateRenderer) {
	w.Header().Set("Retry-After", strconv.Itoa(pendingRefreshSeconds))
	if renderer == nil || !IsBrowserRequest(r) {
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: "session_resolving",
			Err:     errors.New("session is still being resolved"),
		})
		return
	}
	if IsHTMX(r) {
		SetHXRefresh(w)
		w.WriteHeader(http.StatusOK)
		return
	}
	renderer.Render(w, r, http.StatusOK, PageLoading, PageData{Title: "Loading", RefreshSeconds: pendingRefreshSeconds})
}

// showAccessDenied renders the access-denied page for browsers and a JSON 403 otherwise.
func showAccessDenied(w http.ResponseWriter, r *http.Request, renderer *TemplateRenderer, user *domainauth.User) {
	if renderer == nil || !IsBrowserRequest(r) {
		WriteError(w, ErrorParams{
			Code:    http.StatusForbidden,
			ErrCode: "insufficient_permissions",
			Err:     errors.New("insufficient permissions"),
		})
		return
	}
	renderer.Render(w, r, http.StatusForbidden, PageDenied, PageData{Title: "Access denied", User: user})
}
