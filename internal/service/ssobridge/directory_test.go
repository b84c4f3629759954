package ssobridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/domain/sso"
	"github.com/peopleops/hrportal/internal/mocks"
	mockauth "github.com/peopleops/hrportal/internal/mocks/auth"
)

const primaryCred = domainauth.Credential("primary")

var (
	naruku  = sso.Application{ID: "naruku", Name: "Naruku", URL: "https://naruku.example.com/app", RequiresAuth: true}
	payroll = sso.Application{ID: "payroll", Name: "Payroll", URL: "https://payroll.example.com", RequiresAuth: true}
	wiki    = sso.Application{ID: "wiki", Name: "Wiki", URL: "https://wiki.example.com", RequiresAuth: false}
)

// gatedBackend blocks ListApplications until release is closed.
type gatedBackend struct {
	*mockauth.FakeSSOBackend
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedBackend) ListApplications(ctx context.Context, primary domainauth.Credential) ([]sso.Application, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.FakeSSOBackend.ListApplications(ctx, primary)
}

func TestDirectory_RefreshReplacesWholesale(t *testing.T) {
	backend := &mockauth.FakeSSOBackend{Apps: []sso.Application{naruku, payroll}}
	dir := NewDirectory(DirectoryOptions{Backend: backend})
	assert.False(t, dir.Loaded(primaryCred))

	require.NoError(t, dir.Refresh(context.Background(), primaryCred))
	require.NoError(t, dir.Refresh(context.Background(), primaryCred))
	assert.Len(t, dir.Applications(primaryCred), 2, "repeated refresh must not duplicate entries")
	assert.True(t, dir.Loaded(primaryCred))

	backend.Apps = []sso.Application{wiki}
	require.NoError(t, dir.Refresh(context.Background(), primaryCred))
	assert.Equal(t, []sso.Application{wiki}, dir.Applications(primaryCred))
	_, ok := dir.Lookup(primaryCred, "naruku")
	assert.False(t, ok)
}

func TestDirectory_DropsDuplicateAndBlankIDs(t *testing.T) {
	dup := naruku
	dup.Name = "Naruku (copy)"
	dup.ID = "NARUKU"
	backend := &mockauth.FakeSSOBackend{Apps: []sso.Application{naruku, dup, {ID: " ", URL: "https://x"}}}
	dir := NewDirectory(DirectoryOptions{Backend: backend})

	require.NoError(t, dir.Refresh(context.Background(), primaryCred))
	apps := dir.Applications(primaryCred)
	require.Len(t, apps, 1)
	assert.Equal(t, "Naruku", apps[0].Name)

	got, ok := dir.Lookup(primaryCred, "  Naruku ")
	require.True(t, ok)
	assert.Equal(t, "naruku", got.ID)
}

func TestDirectory_FailedRefreshKeepsPreviousCache(t *testing.T) {
	backend := &mockauth.FakeSSOBackend{Apps: []sso.Application{naruku}}
	dir := NewDirectory(DirectoryOptions{Backend: backend})
	require.NoError(t, dir.Refresh(context.Background(), primaryCred))

	backend.ListErr = errors.New("directory down")
	err := dir.Refresh(context.Background(), primaryCred)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory down")
	assert.Equal(t, []sso.Application{naruku}, dir.Applications(primaryCred))
}

func TestDirectory_ApplicationsReturnsCopy(t *testing.T) {
	dir := NewDirectory(DirectoryOptions{Backend: &mockauth.FakeSSOBackend{Apps: []sso.Application{naruku}}})
	require.NoError(t, dir.Refresh(context.Background(), primaryCred))

	apps := dir.Applications(primaryCred)
	apps[0].URL = "https://evil.example.com"
	got, _ := dir.Lookup(primaryCred, "naruku")
	assert.Equal(t, naruku.URL, got.URL)
	assert.Equal(t, naruku.URL, dir.Applications(primaryCred)[0].URL)
}

func TestDirectory_ConcurrentRefreshesShareOneFetch(t *testing.T) {
	fake := &mockauth.FakeSSOBackend{Apps: []sso.Application{naruku, wiki}}
	backend := &gatedBackend{FakeSSOBackend: fake, started: make(chan struct{}), release: make(chan struct{})}
	dir := NewDirectory(DirectoryOptions{Backend: backend})

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- dir.Refresh(context.Background(), primaryCred)
	}()
	<-backend.started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- dir.Refresh(context.Background(), primaryCred)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fake.ListCalls())
	assert.Len(t, dir.Applications(primaryCred), 2)
}

func TestDirectory_CallerCancellationDoesNotAbortSharedFetch(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockSSOBackend(ctrl)
	release := make(chan struct{})
	done := make(chan struct{})
	backend.EXPECT().ListApplications(gomock.Any(), primaryCred).
		DoAndReturn(func(ctx context.Context, _ domainauth.Credential) ([]sso.Application, error) {
			defer close(done)
			<-release
			assert.NoError(t, ctx.Err())
			return []sso.Application{naruku}, nil
		})

	dir := NewDirectory(DirectoryOptions{Backend: backend, Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- dir.Refresh(ctx, primaryCred) }()
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(release)
	<-done
	assert.Eventually(t, func() bool { return dir.Loaded(primaryCred) }, time.Second, 5*time.Millisecond)
}

func TestDirectory_NotConfigured(t *testing.T) {
	var dir *Directory
	assert.Error(t, dir.Refresh(context.Background(), primaryCred))
	assert.Error(t, NewDirectory(DirectoryOptions{}).Refresh(context.Background(), primaryCred))
}

func TestDirectory_ListsAreScopedToTheCredential(t *testing.T) {
	backend := &mockauth.FakeSSOBackend{AppsFor: map[domainauth.Credential][]sso.Application{
		"alice-token": {naruku, payroll},
		"bob-token":   {wiki},
	}}
	dir := NewDirectory(DirectoryOptions{Backend: backend})

	require.NoError(t, dir.Refresh(context.Background(), "alice-token"))
	assert.True(t, dir.Loaded("alice-token"))
	assert.False(t, dir.Loaded("bob-token"), "another session must fetch its own list")
	assert.Empty(t, dir.Applications("bob-token"))
	_, ok := dir.Lookup("bob-token", "payroll")
	assert.False(t, ok)

	require.NoError(t, dir.Refresh(context.Background(), "bob-token"))
	assert.Equal(t, []sso.Application{wiki}, dir.Applications("bob-token"))
	assert.Equal(t, []sso.Application{naruku, payroll}, dir.Applications("alice-token"))
	assert.Equal(t, 2, backend.ListCalls())

	dir.Forget("alice-token")
	assert.False(t, dir.Loaded("alice-token"))
	assert.True(t, dir.Loaded("bob-token"))
}

func TestDirectory_EmptyRefreshClearsList(t *testing.T) {
	backend := &mockauth.FakeSSOBackend{Apps: []sso.Application{naruku}}
	dir := NewDirectory(DirectoryOptions{Backend: backend})
	require.NoError(t, dir.Refresh(context.Background(), primaryCred))

	backend.Apps = nil
	require.NoError(t, dir.Refresh(context.Background(), primaryCred))
	assert.True(t, dir.Loaded(primaryCred))
	assert.Empty(t, dir.Applications(primaryCred))
	_, ok := dir.Lookup(primaryCred, "naruku")
	assert.False(t, ok)
}

func TestDirectory_EntriesExpire(t *testing.T) {
	dir := NewDirectory(DirectoryOptions{
		Backend: &mockauth.FakeSSOBackend{Apps: []sso.Application{naruku}},
		TTL:     20 * time.Millisecond,
	})
	require.NoError(t, dir.Refresh(context.Background(), primaryCred))
	assert.True(t, dir.Loaded(primaryCred))
	assert.Eventually(t, func() bool { return !dir.Loaded(primaryCred) }, time.Second, 5*time.Millisecond)
}
