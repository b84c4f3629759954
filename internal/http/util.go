package httpx

import (
	"net/http"
	"net/url"
	"strings"
)

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	// "//host" and "/\host" are treated as network paths by browsers.
	if strings.HasPrefix(candidate, "//") || strings.HasPrefix(candidate, `/\`) {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return candidate
}

// safeRedirectFromURL reduces an absolute URL to its path and query so it
// can be used as a same-origin redirect. It returns "" when raw is unusable.
func safeRedirectFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	// Reject scheme-relative or host-only references.
	if u.Host != "" && !u.IsAbs() {
		return ""
	}
	if u.IsAbs() {
		return safeRedirectPath(u.RequestURI())
	}
	return safeRedirectPath(raw)
}

// redirectPathForRequest returns where the user should land after signing in.
// For htmx requests that is the page the request came from, not the fragment URL.
func redirectPathForRequest(r *http.Request) string {
	if IsHTMX(r) {
		if current := safeRedirectFromURL(hxCurrentURL(r)); current != "" {
			return current
		}
		if referer := safeRedirectFromURL(r.Header.Get("Referer")); referer != "" {
			return referer
		}
	}
	return safeRedirectPath(r.URL.RequestURI())
}

// signInURL builds the sign-in location carrying redirect as redirect_uri.
func signInURL(signInPath, redirect string) string {
	u := url.URL{Path: signInPath}
	if redirect != "" && redirect != "/" {
		q := url.Values{}
		q.Set("redirect_uri", redirect)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// requestRedirectURI reads redirect_uri from the form or query and sanitizes it.
func requestRedirectURI(r *http.Request) string {
	v := r.FormValue("redirect_uri")
	if v == "" {
		v = r.URL.Query().Get("redirect_uri")
	}
	return safeRedirectPath(v)
}
