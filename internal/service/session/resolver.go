// Package session holds the per-session auth state machine: resolving a stored
// credential into a user, publishing snapshots, and gating navigation on them.
package session

import (
	"context"
	"log/slog"
	"time"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/observability/metrics"
	"github.com/peopleops/hrportal/internal/ports"
)

// DefaultResolveTimeout bounds a whoami call.
const DefaultResolveTimeout = 5 * time.Second

// Resolution reasons used in logs and metric tags.
const (
	ReasonNoCredential = "no_credential"
	ReasonResolved     = "resolved"
	ReasonFailed       = "whoami_failed"
)

// Result is the outcome of resolving one credential. It is always terminal.
type Result struct {
	State  domainauth.ResolutionState
	User   *domainauth.User
	Reason string
	// Failed is set when a present credential could not be resolved.
	Failed bool
	Err    error
}

// ResolverOptions groups dependencies for Resolver.
type ResolverOptions struct {
	Users   ports.UserResolver // Required
	Timeout time.Duration      // Optional: defaults to DefaultResolveTimeout
	// ClearOnFailure makes the owning Context wipe a stored credential the
	// backend refused. Off by default: a flaky backend must not log users out.
	ClearOnFailure bool
	Logger         *slog.Logger // Optional
	Metrics        metrics.Sink // Optional
}

// Resolver turns a credential into a terminal resolution state. It never returns an error.
type Resolver struct {
	users          ports.UserResolver
	timeout        time.Duration
	clearOnFailure bool
	logger         *slog.Logger
	metrics        metrics.Sink
}

// NewResolver constructs a Resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		users:          opts.Users,
		timeout:        timeout,
		clearOnFailure: opts.ClearOnFailure,
		logger:         logger.With("component", "session_resolver"),
		metrics:        opts.Metrics,
	}
}

// forgetter is implemented by caching user resolvers.
type forgetter interface {
	Forget(cred domainauth.Credential)
}

// Forget evicts any cached user for cred so a logged-out credential is looked
// up again. It is a no-op when the user resolver does not cache.
func (r *Resolver) Forget(cred domainauth.Credential) {
	if r == nil {
		return
	}
	if f, ok := r.users.(forgetter); ok {
		f.Forget(cred)
	}
}

// Resolve maps an absent credential to anonymous without a network call and a
// present one to the whoami outcome. Every failure resolves anonymous.
func (r *Resolver) Resolve(ctx context.Context, cred domainauth.Credential) Result {
	if cred.IsZero() {
		metrics.EmitResolution(r.metrics, metrics.ResolutionMetric{
			Result: metrics.ResultAnonymous,
			Reason: ReasonNoCredential,
		})
		return Result{State: domainauth.StateAnonymous, Reason: ReasonNoCredential}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	u, err := r.users.CurrentUser(ctx, cred)
	elapsed := time.Since(start)

	if err != nil {
		r.logger.DebugContext(ctx, "session resolution failed", "error", err, "duration", elapsed)
		metrics.EmitResolution(r.metrics, metrics.ResolutionMetric{
			Result:   metrics.ResultAnonymous,
			Reason:   ReasonFailed,
			Duration: elapsed,
			Err:      err,
		})
		return Result{State: domainauth.StateAnonymous, Reason: ReasonFailed, Failed: true, Err: err}
	}

	metrics.EmitResolution(r.metrics, metrics.ResolutionMetric{
		Result:   metrics.ResultSuccess,
		Reason:   ReasonResolved,
		Duration: elapsed,
	})
	return Result{State: domainauth.StateAuthenticated, User: &u, Reason: ReasonResolved}
}
