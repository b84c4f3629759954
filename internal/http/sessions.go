package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/peopleops/hrportal/internal/adapters/tokenstore"
	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/ports"
	"github.com/peopleops/hrportal/internal/service/session"
)

// DefaultWaitTimeout bounds how long a request waits for its session to resolve.
const DefaultWaitTimeout = 3 * time.Second

// RequestSession is the per-request view of a browser session: the Auth
// Context over the primary slot and the SSO slot owned by the bridge.
type RequestSession struct {
	Auth *session.Context
	// Primary is the slot Auth is bound to. Only Auth writes it.
	Primary ports.TokenStore
	SSO     ports.TokenStore
}

// Sessions opens request sessions over a storage mode.
type Sessions struct {
	Stores  tokenstore.RequestStores
	Factory session.Factory
	// WaitTimeout defaults to DefaultWaitTimeout.
	WaitTimeout time.Duration
}

// Open binds a fresh Auth Context to the request's slots. The context is
// unresolved until Resolve or Login is called on it.
func (s *Sessions) Open(w http.ResponseWriter, r *http.Request) *RequestSession {
	pair := s.Stores.ForRequest(w, r)
	return &RequestSession{
		Auth:    s.Factory.New(pair.Primary),
		Primary: pair.Primary,
		SSO:     pair.SSO,
	}
}

// Resolve starts resolution of the stored credential and waits for it.
func (s *Sessions) Resolve(ctx context.Context, rs *RequestSession) domainauth.Snapshot {
	rs.Auth.Start(ctx)
	return s.Await(ctx, rs)
}

// Await waits for a terminal state within the wait timeout. A snapshot that
// is still resolving when the budget runs out is returned as is.
func (s *Sessions) Await(ctx context.Context, rs *RequestSession) domainauth.Snapshot {
	timeout := s.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	snap, _ := rs.Auth.Wait(wctx)
	return snap
}
