package httpx

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names.
const (
	PageSignIn    = "signin"
	PageDashboard = "dashboard"
	PageLoading   = "loading"
	PageRecovery  = "recovery"
	PageDenied    = "denied"
)

var pages = []string{PageSignIn, PageDashboard, PageLoading, PageRecovery, PageDenied}

// TemplateRenderer renders full HTML pages. Each page is parsed into its
// own clone of the layout so pages can redefine the same blocks.
type TemplateRenderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// NewTemplateRenderer parses the embedded templates.
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := template.New("layout.html").Funcs(templateFuncs()).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	out := make(map[string]*template.Template, len(pages))
	for _, name := range pages {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout for %s: %w", name, err)
		}
		t, err := clone.ParseFS(templateFS, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		out[name] = t
	}
	return &TemplateRenderer{pages: out, logger: logger.With("component", "renderer")}, nil
}

// Render executes page into a buffer and writes it with status. A template
// failure is logged and answered with a plain 500 so no partial page is sent.
func (tr *TemplateRenderer) Render(w http.ResponseWriter, r *http.Request, status int, page string, data PageData) {
	t, ok := tr.pages[page]
	if !ok {
		tr.logger.ErrorContext(r.Context(), "unknown page", "page", page)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if data.CSRFToken == "" {
		data.CSRFToken = GetCSRFToken(r)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		tr.logger.ErrorContext(r.Context(), "template execution failed", "page", page, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"displayName": func(u *domainauth.User) string {
			if u == nil {
				return ""
			}
			return u.DisplayName()
		},
		"roleLabel": func(r domainauth.Role) string {
			return strings.ReplaceAll(strings.ToLower(string(r)), "_", " ")
		},
		"initials": func(u *domainauth.User) string {
			if u == nil {
				return ""
			}
			var b strings.Builder
			for _, part := range []string{u.Profile.FirstName, u.Profile.LastName} {
				if rs := []rune(part); len(rs) > 0 {
					b.WriteString(strings.ToUpper(string(rs[0])))
				}
			}
			return b.String()
		},
	}
}
