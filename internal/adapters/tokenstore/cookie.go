package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/ports"
)

// CookieOptions mirrors the attributes written on every credential cookie.
type CookieOptions struct {
	Domain string
	Path   string
	// Secure forces the Secure attribute; otherwise it follows the request scheme.
	Secure bool
	MaxAge time.Duration
}

// ErrPublicSuffixDomain is returned for a cookie domain browsers would reject.
var ErrPublicSuffixDomain = errors.New("cookie domain is a public suffix")

// ValidateCookieDomain rejects domains that are a public suffix (e.g. "co.uk"),
// which browsers refuse to scope cookies to. An empty domain is host-only and valid.
func ValidateCookieDomain(domain string) error {
	d := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if d == "" || d == "localhost" {
		return nil
	}
	suffix, _ := publicsuffix.PublicSuffix(d)
	if suffix == d {
		return fmt.Errorf("%w: %s", ErrPublicSuffixDomain, domain)
	}
	return nil
}

// Cookie stores a credential slot in an HttpOnly cookie named after the slot.
// A Cookie with a nil request reports absent and ignores writes, which is the
// state of any store used outside a request.
type Cookie struct {
	name string
	opts CookieOptions
	r    *http.Request
	w    http.ResponseWriter

	// pending holds a value written during this request so later reads in the
	// same request observe it before the browser echoes the cookie back.
	mu      sync.Mutex
	pending *string
}

var _ ports.TokenStore = (*Cookie)(nil)

// NewCookie binds slot to the request/response pair.
func NewCookie(slot string, opts CookieOptions, w http.ResponseWriter, r *http.Request) *Cookie {
	if opts.Path == "" {
		opts.Path = "/"
	}
	return &Cookie{name: slot, opts: opts, r: r, w: w}
}

func (c *Cookie) bound() bool {
	return c != nil && c.r != nil
}

// Get implements ports.TokenStore.
func (c *Cookie) Get(_ context.Context) (domainauth.Credential, bool) {
	if !c.bound() {
		return "", false
	}
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending != nil {
		cred := domainauth.Credential(*pending)
		return cred, !cred.IsZero()
	}

	ck, err := c.r.Cookie(c.name)
	if err != nil {
		return "", false
	}
	cred := domainauth.Credential(ck.Value)
	return cred, !cred.IsZero()
}

// Set implements ports.TokenStore.
func (c *Cookie) Set(_ context.Context, cred domainauth.Credential) error {
	if !c.bound() || c.w == nil {
		return nil
	}
	v := string(cred)
	c.mu.Lock()
	c.pending = &v
	c.mu.Unlock()

	ck := c.base()
	ck.Value = v
	if c.opts.MaxAge > 0 {
		ck.MaxAge = int(c.opts.MaxAge.Seconds())
	}
	http.SetCookie(c.w, ck)
	return nil
}

// Clear implements ports.TokenStore.
func (c *Cookie) Clear(_ context.Context) error {
	if !c.bound() || c.w == nil {
		return nil
	}
	empty := ""
	c.mu.Lock()
	c.pending = &empty
	c.mu.Unlock()

	ck := c.base()
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0).UTC()
	http.SetCookie(c.w, ck)
	return nil
}

func (c *Cookie) base() *http.Cookie {
	return &http.Cookie{
		Name:     c.name,
		Path:     c.opts.Path,
		Domain:   c.opts.Domain,
		HttpOnly: true,
		Secure:   c.opts.Secure || IsSecureRequest(c.r),
		SameSite: http.SameSiteLaxMode,
	}
}

// IsSecureRequest reports whether r arrived over TLS, directly or via a proxy.
func IsSecureRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
