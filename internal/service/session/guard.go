package session

import (
	"context"
	"log/slog"
	"sync"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/ports"
)

// DefaultSignInPath is where anonymous sessions are sent.
const DefaultSignInPath = "/signin"

// Decision is the outcome of evaluating a snapshot.
type Decision int

const (
	// Pending means resolution is not finished; render a neutral loading state.
	Pending Decision = iota
	// Redirect means the session is anonymous and must sign in.
	Redirect
	// Allow means a user is resolved.
	Allow
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case Redirect:
		return "redirect"
	case Allow:
		return "allow"
	default:
		return "unknown"
	}
}

// Outcome pairs a decision with the user it was made for.
type Outcome struct {
	Decision Decision
	User     *domainauth.User
	// Navigated is set when this evaluation issued the sign-in navigation.
	Navigated bool
}

// GuardOptions configures a Guard.
type GuardOptions struct {
	Navigator  ports.Navigator // Optional: without one the guard only decides
	SignInPath string          // Optional: defaults to DefaultSignInPath
	// ServerSide guards never navigate; the client-side check takes over.
	ServerSide bool
	Logger     *slog.Logger
}

// Guard gates protected views on a session snapshot. It navigates to the
// sign-in path at most once per session generation.
type Guard struct {
	nav        ports.Navigator
	signInPath string
	serverSide bool
	logger     *slog.Logger

	mu           sync.Mutex
	redirected   bool
	redirectedAt uint64
}

// NewGuard constructs a Guard.
func NewGuard(opts GuardOptions) *Guard {
	path := opts.SignInPath
	if path == "" {
		path = DefaultSignInPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		nav:        opts.Navigator,
		signInPath: path,
		serverSide: opts.ServerSide,
		logger:     logger.With("component", "route_guard"),
	}
}

// SignInPath returns the configured sign-in path.
func (g *Guard) SignInPath() string { return g.signInPath }

// Evaluate decides for snap. Unresolved and resolving snapshots are always
// Pending and never navigate.
func (g *Guard) Evaluate(snap domainauth.Snapshot) Outcome {
	switch snap.State {
	case domainauth.StateAuthenticated:
		if snap.User != nil {
			return Outcome{Decision: Allow, User: snap.User}
		}
		return g.redirect(snap)
	case domainauth.StateAnonymous:
		return g.redirect(snap)
	default:
		return Outcome{Decision: Pending}
	}
}

func (g *Guard) redirect(snap domainauth.Snapshot) Outcome {
	out := Outcome{Decision: Redirect}
	if g.serverSide || g.nav == nil {
		return out
	}

	g.mu.Lock()
	already := g.redirected && g.redirectedAt == snap.Generation
	if !already {
		g.redirected = true
		g.redirectedAt = snap.Generation
	}
	g.mu.Unlock()

	if already {
		return out
	}
	g.logger.Debug("redirecting anonymous session", "path", g.signInPath, "generation", snap.Generation)
	g.nav.Navigate(g.signInPath)
	out.Navigated = true
	return out
}

// Watch evaluates every snapshot the session publishes until ctx ends and
// hands each outcome to fn (which may be nil).
func (g *Guard) Watch(ctx context.Context, sess *Context, fn func(Outcome)) {
	ch, cancel := sess.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			out := g.Evaluate(snap)
			if fn != nil {
				fn(out)
			}
		}
	}
}
