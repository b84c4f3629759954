package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/observability/metrics"
	"github.com/peopleops/hrportal/internal/ports"
)

// ErrEmptyCredential is returned by Login for a blank credential.
var ErrEmptyCredential = errors.New("credential is empty")

// ContextOptions groups dependencies for Context.
type ContextOptions struct {
	Store    ports.TokenStore // Required: the primary slot
	Resolver *Resolver        // Required
	Logger   *slog.Logger     // Optional
	Metrics  metrics.Sink     // Optional
}

// Context is the single source of truth for one session's credential, user
// and resolution state. It is safe for concurrent use.
//
// Every credential change bumps a generation number; a resolution started
// under an older generation is discarded when it completes.
type Context struct {
	store    ports.TokenStore
	resolver *Resolver
	logger   *slog.Logger
	metrics  metrics.Sink

	// opMu serializes Login and Logout, persistence included.
	opMu sync.Mutex

	mu      sync.Mutex
	cred    domainauth.Credential
	user    *domainauth.User
	state   domainauth.ResolutionState
	gen     uint64
	subs    map[uint64]chan domainauth.Snapshot
	nextSub uint64
	changed chan struct{}

	discarded atomic.Int64
	inflight  sync.WaitGroup
}

// NewContext builds a Context in the unresolved state. Call Start to resolve
// the stored credential.
func NewContext(opts ContextOptions) *Context {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		store:    opts.Store,
		resolver: opts.Resolver,
		logger:   logger.With("component", "auth_context"),
		metrics:  opts.Metrics,
		state:    domainauth.StateUnresolved,
		subs:     map[uint64]chan domainauth.Snapshot{},
		changed:  make(chan struct{}),
	}
}

// Start reads the stored credential and begins resolving it. Without a
// stored credential the session becomes anonymous immediately.
func (c *Context) Start(ctx context.Context) {
	cred, ok := c.readStore(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.user = nil
	if !ok {
		c.cred = ""
		c.state = domainauth.StateAnonymous
		c.publishLocked()
		return
	}
	c.cred = cred
	c.state = domainauth.StateResolving
	c.publishLocked()
	c.resolveLocked(ctx, c.gen, cred)
}

// Login persists cred and then resolves it. Only persistence errors are
// returned; a credential the backend rejects resolves anonymous.
func (c *Context) Login(ctx context.Context, cred domainauth.Credential) error {
	if cred.IsZero() {
		return ErrEmptyCredential
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.store != nil {
		if err := c.store.Set(ctx, cred); err != nil {
			return fmt.Errorf("persist credential: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cred = cred
	c.user = nil
	c.state = domainauth.StateResolving
	c.publishLocked()
	c.resolveLocked(ctx, c.gen, cred)
	return nil
}

// Logout clears the stored credential and resolves anonymous. The generation
// is bumped before storage is touched so an in-flight resolution cannot bring
// the user back. On a session that is already anonymous with no credential it
// only clears storage: nothing is published and the generation is unchanged.
func (c *Context) Logout(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	cred := c.cred
	if cred.IsZero() {
		cred, _ = c.readStore(ctx)
	}
	if !cred.IsZero() {
		c.resolver.Forget(cred)
	}

	loggedOut := c.cred.IsZero() && c.state == domainauth.StateAnonymous
	if !loggedOut {
		c.gen++
	}

	var err error
	if c.store != nil {
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			err = fmt.Errorf("clear credential: %w", clearErr)
		}
	}
	if loggedOut {
		return err
	}

	c.cred = ""
	c.user = nil
	c.state = domainauth.StateAnonymous
	c.publishLocked()
	metrics.EmitLogout(c.metrics)
	return err
}

// UpdateUser merges display fields into the resolved user. With no resolved
// user it logs and reports false.
func (c *Context) UpdateUser(ctx context.Context, patch domainauth.UserPatch) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		c.logger.WarnContext(ctx, "user update ignored: no resolved user", "state", c.state)
		return false
	}
	u := c.user.Apply(patch)
	c.user = &u
	c.publishLocked()
	return true
}

// Snapshot returns the current state.
func (c *Context) Snapshot() domainauth.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Credential returns the primary credential currently held, if any.
func (c *Context) Credential() (domainauth.Credential, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred, !c.cred.IsZero()
}

// Subscribe returns a channel that receives the current snapshot and every
// later change. Slow readers only see the latest value. Call cancel to stop.
func (c *Context) Subscribe() (<-chan domainauth.Snapshot, func()) {
	ch := make(chan domainauth.Snapshot, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			close(ch)
			c.mu.Unlock()
		})
	}
}

// Wait blocks until the state is terminal or ctx ends, returning the latest snapshot.
func (c *Context) Wait(ctx context.Context) (domainauth.Snapshot, error) {
	for {
		c.mu.Lock()
		snap := c.snapshotLocked()
		changed := c.changed
		c.mu.Unlock()

		if snap.State.Terminal() {
			return snap, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Drain waits for every in-flight resolution goroutine to finish.
func (c *Context) Drain() { c.inflight.Wait() }

// Discarded reports how many stale resolutions were dropped.
func (c *Context) Discarded() int64 { return c.discarded.Load() }

// IsSuperAdmin reports whether the resolved user is a SUPER_ADMIN.
func (c *Context) IsSuperAdmin() bool { return c.HasRole(domainauth.RoleSuperAdmin) }

// IsAdmin reports whether the resolved user is an ADMIN.
func (c *Context) IsAdmin() bool { return c.HasRole(domainauth.RoleAdmin) }

// IsEmployee reports whether the resolved user is an EMPLOYEE.
func (c *Context) IsEmployee() bool { return c.HasRole(domainauth.RoleEmployee) }

// HasRole reports whether the resolved user holds role.
func (c *Context) HasRole(role domainauth.Role) bool {
	return domainauth.HasRole(c.Snapshot().User, role)
}

// CanAccess reports whether the resolved user holds one of roles.
func (c *Context) CanAccess(roles ...domainauth.Role) bool {
	return domainauth.CanAccess(c.Snapshot().User, roles...)
}

// Can reports whether the resolved user's role grants capability.
func (c *Context) Can(capability domainauth.Capability) bool {
	return domainauth.Allows(c.Snapshot().User, capability)
}

// CanAccessApplication reports whether the resolved user may launch application.
func (c *Context) CanAccessApplication(application string) bool {
	return domainauth.CanAccessApplication(c.Snapshot().User, application)
}

func (c *Context) readStore(ctx context.Context) (domainauth.Credential, bool) {
	if c.store == nil {
		return "", false
	}
	return c.store.Get(ctx)
}

// resolveLocked starts resolving cred under gen. Caller holds c.mu.
func (c *Context) resolveLocked(ctx context.Context, gen uint64, cred domainauth.Credential) {
	// The resolution outlives the caller's cancellation; the resolver's own
	// timeout bounds it.
	rctx := context.WithoutCancel(ctx)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		res := c.resolver.Resolve(rctx, cred)
		c.apply(rctx, gen, res)
	}()
}

func (c *Context) apply(ctx context.Context, gen uint64, res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		c.discarded.Add(1)
		c.logger.DebugContext(ctx, "discarding stale resolution", "generation", gen, "current", c.gen)
		metrics.EmitResolution(c.metrics, metrics.ResolutionMetric{Result: metrics.ResultDiscarded})
		return
	}

	c.state = res.State
	c.user = res.User
	if res.Failed && c.resolver.clearOnFailure && c.store != nil {
		if err := c.store.Clear(ctx); err != nil {
			c.logger.WarnContext(ctx, "failed to clear rejected credential", "error", err)
		}
		c.cred = ""
	}
	c.publishLocked()
}

func (c *Context) snapshotLocked() domainauth.Snapshot {
	var u *domainauth.User
	if c.user != nil {
		cp := *c.user
		u = &cp
	}
	return domainauth.Snapshot{
		HasCredential: !c.cred.IsZero(),
		User:          u,
		State:         c.state,
		Generation:    c.gen,
	}
}

// publishLocked fans the current snapshot out with latest-wins delivery and
// wakes waiters. Caller holds c.mu.
func (c *Context) publishLocked() {
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	close(c.changed)
	c.changed = make(chan struct{})
}
