package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/peopleops/hrportal/internal/adapters/tokenstore"
	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/mocks"
	mockauth "github.com/peopleops/hrportal/internal/mocks/auth"
)

func TestGuard_PendingNeverNavigates(t *testing.T) {
	ctrl := gomock.NewController(t)
	nav := mocks.NewMockNavigator(ctrl) // any Navigate call fails the test

	g := NewGuard(GuardOptions{Navigator: nav})
	for _, st := range []domainauth.ResolutionState{domainauth.StateUnresolved, domainauth.StateResolving} {
		out := g.Evaluate(domainauth.Snapshot{State: st, HasCredential: true})
		assert.Equal(t, Pending, out.Decision, st)
		assert.False(t, out.Navigated)
	}
}

func TestGuard_RedirectsOncePerGeneration(t *testing.T) {
	ctrl := gomock.NewController(t)
	nav := mocks.NewMockNavigator(ctrl)
	nav.EXPECT().Navigate("/signin").Times(2)

	g := NewGuard(GuardOptions{Navigator: nav})
	anon := domainauth.Snapshot{State: domainauth.StateAnonymous, Generation: 1}

	assert.True(t, g.Evaluate(anon).Navigated)
	assert.False(t, g.Evaluate(anon).Navigated)
	assert.Equal(t, Redirect, g.Evaluate(anon).Decision)

	anon.Generation = 2
	assert.True(t, g.Evaluate(anon).Navigated)
}

func TestGuard_AllowCarriesUser(t *testing.T) {
	g := NewGuard(GuardOptions{})
	u := bob
	out := g.Evaluate(domainauth.Snapshot{State: domainauth.StateAuthenticated, User: &u})
	assert.Equal(t, Allow, out.Decision)
	assert.Equal(t, "bob", out.User.Username)
	assert.Equal(t, "allow", out.Decision.String())
}

func TestGuard_ServerSideNeverNavigates(t *testing.T) {
	nav := &mockauth.RecordingNavigator{}
	g := NewGuard(GuardOptions{Navigator: nav, ServerSide: true, SignInPath: "/login"})

	out := g.Evaluate(domainauth.Snapshot{State: domainauth.StateAnonymous})
	assert.Equal(t, Redirect, out.Decision)
	assert.Empty(t, nav.Paths())
	assert.Equal(t, "/login", g.SignInPath())
}

// Expired token end to end: the guard sees resolving (no redirect), then
// anonymous, and navigates exactly once.
func TestGuard_ExpiredTokenRedirectsExactlyOnce(t *testing.T) {
	store := tokenstore.NewMemory()
	require.NoError(t, store.Set(context.Background(), "expired-token"))
	users := mockauth.NewStubUsers()
	release := users.Hold("expired-token")

	sess := NewContext(ContextOptions{Store: store, Resolver: NewResolver(ResolverOptions{Users: users})})
	t.Cleanup(sess.Drain)
	nav := &mockauth.RecordingNavigator{}
	g := NewGuard(GuardOptions{Navigator: nav})

	var (
		mu       sync.Mutex
		outcomes []Outcome
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Watch(ctx, sess, func(o Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	})

	sess.Start(context.Background())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(outcomes) > 0 && outcomes[len(outcomes)-1].Decision == Pending
	}, time.Second, time.Millisecond)
	assert.Empty(t, nav.Paths(), "no redirect while resolving")

	release()
	require.Eventually(t, func() bool { return len(nav.Paths()) == 1 }, time.Second, time.Millisecond)

	// Re-evaluating the same anonymous state does not navigate again.
	g.Evaluate(sess.Snapshot())
	assert.Equal(t, []string{"/signin"}, nav.Paths())
}
