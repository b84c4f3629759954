package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/domain/sso"
	"github.com/peopleops/hrportal/internal/service/ssobridge"
)

// AppHandlers serves the guarded portal pages and the application directory.
// Every handler expects RequireSession to have run.
type AppHandlers struct {
	Bridge   *ssobridge.Bridge
	Renderer *TemplateRenderer
	Logger   *slog.Logger
}

func (h *AppHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// requestSession is a guard against wiring a handler outside RequireSession.
func requestSession(w http.ResponseWriter, r *http.Request) (*RequestSession, bool) {
	rs, ok := GetSessionFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
	}
	return rs, ok
}

// ensureDirectory loads the session's application list once. Refresh
// failures leave the previous list in place.
func (h *AppHandlers) ensureDirectory(ctx context.Context, rs *RequestSession, force bool) error {
	if !force && h.Bridge.ApplicationsLoaded(rs.Auth) {
		return nil
	}
	return h.Bridge.RefreshApplications(ctx, rs.Auth)
}

// Dashboard renders the landing page of a signed-in user.
// GET /.
func (h *AppHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	rs, ok := requestSession(w, r)
	if !ok {
		return
	}
	user := rs.Auth.Snapshot().User

	data := PageData{
		Title:        "Dashboard",
		User:         user,
		Capabilities: domainauth.CapabilitiesOf(user),
	}
	if domainauth.Allows(user, domainauth.CapAccessApplication) {
		if err := h.ensureDirectory(r.Context(), rs, false); err != nil {
			h.logger().WarnContext(r.Context(), "application directory unavailable", "error", err)
			data.DirectoryError = "Applications are unavailable right now."
		}
		data.Applications = h.Bridge.Applications(rs.Auth)
	}
	h.Renderer.Render(w, r, http.StatusOK, PageDashboard, data)
}

type meResponse struct {
	User         *domainauth.User        `json:"user"`
	Role         domainauth.Role         `json:"role"`
	Capabilities []domainauth.Capability `json:"capabilities"`
}

// Me returns the current user and what the user may do.
// GET /api/me.
func (h *AppHandlers) Me(w http.ResponseWriter, r *http.Request) {
	rs, ok := requestSession(w, r)
	if !ok {
		return
	}
	user := rs.Auth.Snapshot().User
	WriteJSON(w, http.StatusOK, meResponse{
		User:         user,
		Role:         user.Role,
		Capabilities: domainauth.CapabilitiesOf(user),
	})
}

type applicationsResponse struct {
	Applications []sso.Application `json:"applications"`
	// Stale is set when a requested refresh failed and the cached list was served.
	Stale bool `json:"stale,omitempty"`
}

// Applications lists the applications the user may launch.
// GET /api/applications?refresh=1.
func (h *AppHandlers) Applications(w http.ResponseWriter, r *http.Request) {
	rs, ok := requestSession(w, r)
	if !ok {
		return
	}
	force := r.URL.Query().Get("refresh") == "1"

	var resp applicationsResponse
	if err := h.ensureDirectory(r.Context(), rs, force); err != nil {
		if !h.Bridge.ApplicationsLoaded(rs.Auth) {
			WriteAppError(w, err, "directory_unavailable")
			return
		}
		h.logger().WarnContext(r.Context(), "serving cached application directory", "error", err)
		resp.Stale = true
	}
	resp.Applications = h.Bridge.Applications(rs.Auth)
	if resp.Applications == nil {
		resp.Applications = []sso.Application{}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// urlOpener captures the launch URL so the handler can redirect to it.
type urlOpener struct{ url string }

func (o *urlOpener) Open(_ context.Context, url string) error {
	o.url = url
	return nil
}

type launchResponse struct {
	Application   string            `json:"application"`
	URL           string            `json:"url"`
	TokenAttached bool              `json:"token_attached"`
	Fallback      bool              `json:"fallback"`
	Trace         []sso.LaunchState `json:"trace"`
}

// Launch opens an application. Plain form posts (opened in a new tab) are
// redirected to the application; scripted clients get the URL as JSON.
// POST /apps/{id}/launch.
func (h *AppHandlers) Launch(w http.ResponseWriter, r *http.Request) {
	rs, ok := requestSession(w, r)
	if !ok {
		return
	}
	opener := &urlOpener{}
	bridge := h.Bridge.Bind(rs.SSO, opener)

	launch, err := bridge.Launch(r.Context(), rs.Auth, r.PathValue("id"))
	if err != nil {
		h.writeLaunchError(w, r, err)
		return
	}

	if IsBrowserRequest(r) && !IsHTMX(r) && !wantsJSON(r) {
		http.Redirect(w, r, opener.url, http.StatusSeeOther)
		return
	}
	WriteJSON(w, http.StatusOK, launchResponse{
		Application:   launch.Application.ID,
		URL:           launch.URL,
		TokenAttached: launch.TokenAttached,
		Fallback:      launch.Fallback(),
		Trace:         launch.Trace,
	})
}

func (h *AppHandlers) writeLaunchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ssobridge.ErrUnknownApplication):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "unknown_application", Err: err})
	case errors.Is(err, ssobridge.ErrForbidden):
		showAccessDenied(w, r, h.Renderer, CurrentUser(r.Context()))
	case errors.Is(err, ssobridge.ErrNotAuthenticated):
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "authentication_required", Err: err})
	default:
		h.logger().ErrorContext(r.Context(), "application launch failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusBadGateway, ErrCode: "launch_failed", Err: err})
	}
}
