package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/peopleops/hrportal/internal/adapters/tokenstore"
	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	apperrors "github.com/peopleops/hrportal/internal/errors"
	"github.com/peopleops/hrportal/internal/ports"
	"github.com/peopleops/hrportal/internal/service"
	"github.com/peopleops/hrportal/internal/service/session"
	"github.com/peopleops/hrportal/internal/service/ssobridge"
)

// AuthService is the login surface the handlers drive. *service.AuthService implements it.
type AuthService interface {
	BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, sess service.Session, input service.CompleteLoginInput) (*service.CompleteLoginResult, error)
	PasswordLogin(ctx context.Context, sess service.Session, email, password string) (*ports.LoginResult, error)
	Logout(ctx context.Context, sess service.Session) error
	RedirectEnabled() bool
	PasswordEnabled() bool
}

var _ AuthService = (*service.AuthService)(nil)

const (
	cookieOAuthState    = "oauth_state"
	cookieOAuthNonce    = "oauth_nonce"
	cookiePostLogin     = "post_login_redirect"
	oauthCookieLifetime = 10 * time.Minute
)

// Sign-in error codes carried in the query string. Only these are rendered.
var signInErrors = map[string]string{
	"login_failed":   "Sign-in could not be completed. Please try again.",
	"invalid_state":  "Your sign-in attempt expired. Please try again.",
	"session_failed": "Your session could not be loaded. Please sign in again.",
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc      AuthService
	Sessions *Sessions
	Renderer *TemplateRenderer
	// Bridge is optional; when set, sign-out also clears the SSO slot.
	Bridge     *ssobridge.Bridge
	Cookies    tokenstore.CookieOptions
	SignInPath string
	Logger     *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) signInPath() string {
	if h.SignInPath != "" {
		return h.SignInPath
	}
	return session.DefaultSignInPath
}

// SignIn renders the sign-in page, or forwards an already signed-in user.
// GET /signin?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) SignIn(w http.ResponseWriter, r *http.Request) {
	rs := h.Sessions.Open(w, r)
	defer rs.Auth.Drain()

	redirectURI := requestRedirectURI(r)
	if snap := h.Sessions.Resolve(r.Context(), rs); snap.Authenticated() {
		http.Redirect(w, r, redirectURI, http.StatusSeeOther)
		return
	}
	h.renderSignIn(w, r, http.StatusOK, signInErrors[r.URL.Query().Get("error")], "", redirectURI)
}

func (h *AuthHandlers) renderSignIn(w http.ResponseWriter, r *http.Request, status int, msg, email, redirectURI string) {
	h.Renderer.Render(w, r, status, PageSignIn, PageData{
		Title:           "Sign in",
		Error:           msg,
		Email:           email,
		RedirectURI:     redirectURI,
		PasswordEnabled: h.Svc.PasswordEnabled(),
		RedirectEnabled: h.Svc.RedirectEnabled(),
	})
}

type loginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

type sessionResponse struct {
	Authenticated bool                       `json:"authenticated"`
	State         domainauth.ResolutionState `json:"state"`
	User          *domainauth.User           `json:"user,omitempty"`
	Capabilities  []domainauth.Capability    `json:"capabilities,omitempty"`
	RedirectTo    string                     `json:"redirect_to,omitempty"`
}

func newSessionResponse(snap domainauth.Snapshot) sessionResponse {
	resp := sessionResponse{Authenticated: snap.Authenticated(), State: snap.State}
	if snap.Authenticated() {
		resp.User = snap.User
		resp.Capabilities = domainauth.CapabilitiesOf(snap.User)
	}
	return resp
}

// Login handles password sign-in from the sign-in form or a JSON client.
// POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	asJSON := wantsJSON(r)
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if !DecodeJSON(w, r, &req) {
			return
		}
	} else {
		req = loginRequest{
			Email:       r.FormValue("email"),
			Password:    r.FormValue("password"),
			RedirectURI: r.FormValue("redirect_uri"),
		}
	}
	redirectURI := safeRedirectPath(req.RedirectURI)
	email := strings.TrimSpace(req.Email)

	if email == "" || req.Password == "" {
		err := errors.New("email and password are required")
		if asJSON {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_request", Err: err})
			return
		}
		h.renderSignIn(w, r, http.StatusBadRequest, "Enter your email and password.", email, redirectURI)
		return
	}

	rs := h.Sessions.Open(w, r)
	defer rs.Auth.Drain()

	if _, err := h.Svc.PasswordLogin(r.Context(), rs.Auth, email, req.Password); err != nil {
		h.logger().InfoContext(r.Context(), "password login failed", "error", err)
		status, msg := loginFailure(err)
		if asJSON {
			if errors.Is(err, service.ErrMethodUnavailable) {
				WriteError(w, ErrorParams{Code: status, ErrCode: "method_unavailable", Err: err})
				return
			}
			WriteAppError(w, err, "login_failed")
			return
		}
		h.renderSignIn(w, r, status, msg, email, redirectURI)
		return
	}

	snap := h.Sessions.Await(r.Context(), rs)
	if asJSON {
		resp := newSessionResponse(snap)
		resp.RedirectTo = redirectURI
		WriteJSON(w, http.StatusOK, resp)
		return
	}
	http.Redirect(w, r, redirectURI, http.StatusSeeOther)
}

// loginFailure maps a login error to a status and a message safe to show.
func loginFailure(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrMethodUnavailable):
		return http.StatusNotFound, "Password sign-in is not available."
	case apperrors.IsUnauthorized(err), apperrors.IsValidation(err):
		return http.StatusUnauthorized, "Invalid email or password."
	case apperrors.IsTimeout(err):
		return http.StatusGatewayTimeout, "The sign-in service did not answer in time. Please try again."
	default:
		return http.StatusBadGateway, "Sign-in is temporarily unavailable. Please try again."
	}
}

// OAuthStart handles the redirect login initiation endpoint.
// GET /auth/oauth/start?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) OAuthStart(w http.ResponseWriter, r *http.Request) {
	redirectURI := requestRedirectURI(r)

	result, err := h.Svc.BeginLogin(r.Context(), redirectURI)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrMethodUnavailable) {
			status = http.StatusNotFound
		}
		WriteError(w, ErrorParams{Code: status, ErrCode: "login_failed", Err: err})
		return
	}

	h.setCookie(w, r, cookieOAuthState, result.State)
	h.setCookie(w, r, cookieOAuthNonce, result.Nonce)
	h.setCookie(w, r, cookiePostLogin, redirectURI)

	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback completes the redirect login flow.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_code",
			Err:     errors.New("authorization code is required"),
		})
		return
	}

	stateCookie, err := r.Cookie(cookieOAuthState)
	if state == "" || err != nil || stateCookie.Value != state {
		h.failCallback(w, r, "invalid_state", errors.New("invalid or missing state parameter"))
		return
	}
	nonceCookie, err := r.Cookie(cookieOAuthNonce)
	if err != nil {
		h.failCallback(w, r, "invalid_state", errors.New("missing nonce parameter"))
		return
	}

	rs := h.Sessions.Open(w, r)
	defer rs.Auth.Drain()

	if _, err := h.Svc.CompleteLogin(r.Context(), rs.Auth, service.CompleteLoginInput{
		Code:  code,
		State: state,
		Nonce: nonceCookie.Value,
	}); err != nil {
		h.failCallback(w, r, "login_failed", err)
		return
	}

	h.clearCookie(w, r, cookieOAuthState)
	h.clearCookie(w, r, cookieOAuthNonce)
	http.Redirect(w, r, h.postLoginRedirect(w, r), http.StatusFound)
}

func (h *AuthHandlers) failCallback(w http.ResponseWriter, r *http.Request, code string, err error) {
	h.logger().WarnContext(r.Context(), "login callback failed", "reason", code, "error", err)
	h.clearCookie(w, r, cookieOAuthState)
	h.clearCookie(w, r, cookieOAuthNonce)
	if wantsJSON(r) {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: code, Err: err})
		return
	}
	target := signInURL(h.signInPath(), "")
	http.Redirect(w, r, target+"?error="+code, http.StatusSeeOther)
}

// Logout ends the portal session and drops any application token.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	rs := h.Sessions.Open(w, r)
	defer rs.Auth.Drain()

	if h.Bridge != nil && rs.Primary != nil {
		if primary, ok := rs.Primary.Get(r.Context()); ok {
			h.Bridge.ForgetApplications(primary)
		}
	}
	if err := h.Svc.Logout(r.Context(), rs.Auth); err != nil {
		h.logger().WarnContext(r.Context(), "logout failed", "error", err)
	}
	if h.Bridge != nil {
		if err := h.Bridge.Bind(rs.SSO, nil).SignOut(r.Context()); err != nil {
			h.logger().WarnContext(r.Context(), "sso sign-out failed", "error", err)
		}
	}
	h.leave(w, r, "signed_out")
}

// Reset clears both credential slots without consulting any service. It is
// the single action of the recovery screen.
// POST /auth/reset.
func (h *AuthHandlers) Reset(w http.ResponseWriter, r *http.Request) {
	rs := h.Sessions.Open(w, r)
	defer rs.Auth.Drain()

	if err := rs.Auth.Logout(r.Context()); err != nil {
		h.logger().WarnContext(r.Context(), "reset: clearing primary slot failed", "error", err)
	}
	if rs.SSO != nil {
		if err := rs.SSO.Clear(r.Context()); err != nil {
			h.logger().WarnContext(r.Context(), "reset: clearing sso slot failed", "error", err)
		}
	}
	h.logger().InfoContext(r.Context(), "session reset")
	h.leave(w, r, "reset")
}

// leave sends the client to the sign-in page after logout or reset.
func (h *AuthHandlers) leave(w http.ResponseWriter, r *http.Request, status string) {
	target := h.signInPath()
	switch {
	case wantsJSON(r):
		WriteJSON(w, http.StatusOK, map[string]string{"status": status, "redirect_to": target})
	case IsHTMX(r):
		SetHXRedirect(w, target)
		w.WriteHeader(http.StatusOK)
	default:
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

// Recovery renders the recovery screen on its own.
// GET /auth/recover.
func (h *AuthHandlers) Recovery(w http.ResponseWriter, r *http.Request) {
	h.Renderer.Render(w, r, http.StatusOK, PageRecovery, PageData{Title: "Something went wrong"})
}

// Status returns the current authentication status.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	rs := h.Sessions.Open(w, r)
	defer rs.Auth.Drain()

	snap := h.Sessions.Resolve(r.Context(), rs)
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, newSessionResponse(snap))
}

// setCookie writes a short-lived HttpOnly cookie for the redirect flow.
func (h *AuthHandlers) setCookie(w http.ResponseWriter, r *http.Request, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.Cookies.Domain,
		HttpOnly: true,
		Secure:   h.Cookies.Secure || tokenstore.IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(oauthCookieLifetime.Seconds()),
	})
}

// clearCookie mirrors the attributes used by setCookie so browsers drop it.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.Cookies.Domain,
		HttpOnly: true,
		Secure:   h.Cookies.Secure || tokenstore.IsSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// postLoginRedirect returns the post-login redirect URL and clears its cookie.
func (h *AuthHandlers) postLoginRedirect(w http.ResponseWriter, r *http.Request) string {
	ck, err := r.Cookie(cookiePostLogin)
	if err != nil {
		return "/"
	}
	h.clearCookie(w, r, cookiePostLogin)
	return safeRedirectPath(ck.Value)
}
