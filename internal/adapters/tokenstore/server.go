package tokenstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/ports"
)

// SIDCookieName is the opaque browser-session id keying server-side slots.
const SIDCookieName = "hrportal_sid"

// SlotBackend persists credential slots per browser session. The redis and
// postgres adapters implement it.
type SlotBackend interface {
	GetSlot(ctx context.Context, sid, slot string) (string, bool, error)
	SetSlot(ctx context.Context, sid, slot, value string) error
	ClearSlot(ctx context.Context, sid, slot string) error
}

// sidBinding is the browser-session id shared by the slots of one request.
// Rotating it re-issues the cookie on w.
type sidBinding struct {
	mu   sync.Mutex
	sid  string
	w    http.ResponseWriter
	r    *http.Request
	opts CookieOptions
}

func (b *sidBinding) current() string {
	if b == nil {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sid
}

// Server is a TokenStore over one slot of one browser session.
// An empty session id behaves like an unbound store.
type Server struct {
	backend SlotBackend
	binding *sidBinding
	slot    string
	logger  *slog.Logger
	// rotate makes Set move the session to a fresh id before writing, so an
	// id planted before sign-in never carries an authenticated slot.
	rotate bool
}

var _ ports.TokenStore = (*Server)(nil)

// NewServer binds slot of session sid to backend.
func NewServer(backend SlotBackend, sid, slot string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{backend: backend, binding: &sidBinding{sid: sid}, slot: slot, logger: logger}
}

func (s *Server) bound() bool {
	return s != nil && s.backend != nil && s.binding.current() != ""
}

// SID returns the session id the slot is currently keyed by.
func (s *Server) SID() string {
	if s == nil {
		return ""
	}
	return s.binding.current()
}

// Get implements ports.TokenStore. Backend errors are logged and read as absent.
func (s *Server) Get(ctx context.Context) (domainauth.Credential, bool) {
	if !s.bound() {
		return "", false
	}
	v, ok, err := s.backend.GetSlot(ctx, s.binding.current(), s.slot)
	if err != nil {
		s.logger.WarnContext(ctx, "credential slot read failed", "slot", s.slot, "error", err)
		return "", false
	}
	cred := domainauth.Credential(v)
	return cred, ok && !cred.IsZero()
}

// Set implements ports.TokenStore.
func (s *Server) Set(ctx context.Context, cred domainauth.Credential) error {
	if !s.bound() {
		return nil
	}
	if s.rotate {
		if err := s.rotateSID(ctx); err != nil {
			return fmt.Errorf("rotate session id: %w", err)
		}
	}
	return s.backend.SetSlot(ctx, s.binding.current(), s.slot, string(cred))
}

// Clear implements ports.TokenStore.
func (s *Server) Clear(ctx context.Context) error {
	if !s.bound() {
		return nil
	}
	return s.backend.ClearSlot(ctx, s.binding.current(), s.slot)
}

// rotateSID moves the session's other slots to a new id, clears the old id's
// slots and re-issues the cookie.
func (s *Server) rotateSID(ctx context.Context) error {
	b := s.binding
	b.mu.Lock()
	defer b.mu.Unlock()

	old := b.sid
	next := uuid.NewString()
	for _, slot := range []string{ports.SlotPrimary, ports.SlotSSO} {
		if slot == s.slot {
			continue
		}
		v, ok, err := s.backend.GetSlot(ctx, old, slot)
		if err != nil {
			return err
		}
		if ok && v != "" {
			if err := s.backend.SetSlot(ctx, next, slot, v); err != nil {
				return err
			}
		}
	}
	for _, slot := range []string{ports.SlotPrimary, ports.SlotSSO} {
		if err := s.backend.ClearSlot(ctx, old, slot); err != nil {
			s.logger.WarnContext(ctx, "failed to clear slot of rotated session", "slot", slot, "error", err)
		}
	}

	b.sid = next
	if b.w != nil && b.r != nil {
		setSIDCookie(b.w, b.r, b.opts, next)
	}
	s.logger.DebugContext(ctx, "session id rotated")
	return nil
}

// Pair holds the two independent slots of one request.
type Pair struct {
	Primary ports.TokenStore
	SSO     ports.TokenStore
}

// RequestStores builds the slot pair for an HTTP request.
type RequestStores interface {
	ForRequest(w http.ResponseWriter, r *http.Request) Pair
}

// CookieSlots keeps both slots in cookies on the browser.
type CookieSlots struct {
	Options CookieOptions
}

// ForRequest implements RequestStores.
func (c CookieSlots) ForRequest(w http.ResponseWriter, r *http.Request) Pair {
	return Pair{
		Primary: NewCookie(ports.SlotPrimary, c.Options, w, r),
		SSO:     NewCookie(ports.SlotSSO, c.Options, w, r),
	}
}

// ServerSlots keeps both slots in a SlotBackend keyed by the hrportal_sid cookie,
// issuing a fresh id to browsers that have none. Writing the primary slot
// (a login) always moves the session to a new id.
type ServerSlots struct {
	Backend SlotBackend
	Options CookieOptions
	Logger  *slog.Logger
}

// ForRequest implements RequestStores.
func (s ServerSlots) ForRequest(w http.ResponseWriter, r *http.Request) Pair {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &sidBinding{sid: EnsureSID(w, r, s.Options), w: w, r: r, opts: s.Options}
	return Pair{
		Primary: &Server{backend: s.Backend, binding: b, slot: ports.SlotPrimary, logger: logger, rotate: true},
		SSO:     &Server{backend: s.Backend, binding: b, slot: ports.SlotSSO, logger: logger},
	}
}

// EnsureSID returns the request's session id, minting and setting one when the
// cookie is missing or not a UUID. A nil request yields "".
func EnsureSID(w http.ResponseWriter, r *http.Request, opts CookieOptions) string {
	if r == nil {
		return ""
	}
	if ck, err := r.Cookie(SIDCookieName); err == nil {
		if id, parseErr := uuid.Parse(strings.TrimSpace(ck.Value)); parseErr == nil {
			return id.String()
		}
	}
	sid := uuid.NewString()
	if w == nil {
		return sid
	}
	setSIDCookie(w, r, opts, sid)
	return sid
}

// setSIDCookie issues sid to the browser and makes it the value later readers
// of this request see.
func setSIDCookie(w http.ResponseWriter, r *http.Request, opts CookieOptions, sid string) {
	path := opts.Path
	if path == "" {
		path = "/"
	}
	ck := &http.Cookie{
		Name:     SIDCookieName,
		Value:    sid,
		Path:     path,
		Domain:   opts.Domain,
		HttpOnly: true,
		Secure:   opts.Secure || IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	}
	if opts.MaxAge > 0 {
		ck.MaxAge = int(opts.MaxAge / time.Second)
	}
	http.SetCookie(w, ck)
	replaceRequestCookie(r, SIDCookieName, sid)
}

func replaceRequestCookie(r *http.Request, name, value string) {
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	for _, c := range cookies {
		if c.Name != name {
			r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	r.AddCookie(&http.Cookie{Name: name, Value: value})
}
