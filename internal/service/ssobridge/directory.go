package ssobridge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/domain/sso"
	"github.com/peopleops/hrportal/internal/observability/metrics"
	"github.com/peopleops/hrportal/internal/ports"
)

const (
	defaultDirectoryTimeout = 5 * time.Second
	defaultDirectoryTTL     = 15 * time.Minute
	defaultDirectoryEntries = 1024
)

// DirectoryOptions groups dependencies for Directory.
type DirectoryOptions struct {
	Backend ports.SSOBackend // Required
	Timeout time.Duration    // Optional: per-fetch bound, default 5s
	TTL     time.Duration    // Optional: lifetime of one session's list, default 15m
	Entries int              // Optional: session lists kept, default 1024
	Logger  *slog.Logger     // Optional
	Metrics metrics.Sink     // Optional
}

// listing is one session's application list.
type listing struct {
	apps []sso.Application
	byID map[string]sso.Application
}

// Directory caches launchable applications per primary credential, since
// the backend answers with the list visible to the caller. A refresh
// replaces that session's list wholesale; concurrent refreshes for the same
// credential share one fetch.
type Directory struct {
	backend ports.SSOBackend
	timeout time.Duration
	logger  *slog.Logger
	metrics metrics.Sink

	group singleflight.Group
	cache *lru.LRU[string, *listing]
}

// NewDirectory returns an empty Directory.
func NewDirectory(opts DirectoryOptions) *Directory {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultDirectoryTimeout
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultDirectoryTTL
	}
	entries := opts.Entries
	if entries <= 0 {
		entries = defaultDirectoryEntries
	}
	return &Directory{
		backend: opts.Backend,
		timeout: timeout,
		logger:  logger.With("component", "sso_directory"),
		metrics: opts.Metrics,
		cache:   lru.NewLRU[string, *listing](entries, nil, ttl),
	}
}

// sessionKey hashes the credential so raw tokens never become map keys.
func sessionKey(primary domainauth.Credential) string {
	sum := sha256.Sum256([]byte(primary))
	return hex.EncodeToString(sum[:])
}

// Refresh fetches the application list visible to primary and replaces that
// session's cached list with it. On failure the previous list is kept and
// the error returned.
func (d *Directory) Refresh(ctx context.Context, primary domainauth.Credential) error {
	if d == nil || d.backend == nil {
		return errors.New("application directory is not configured")
	}
	key := sessionKey(primary)

	// The shared fetch must not die with whichever caller started it.
	ch := d.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		apps, err := d.backend.ListApplications(fctx, primary)
		if err != nil {
			d.logger.WarnContext(fctx, "application directory refresh failed", "error", err)
			metrics.EmitDirectoryRefresh(d.metrics, 0, err)
			return nil, err
		}
		l := newListing(apps)
		d.cache.Add(key, l)
		d.logger.DebugContext(fctx, "application directory refreshed", "applications", len(l.apps))
		metrics.EmitDirectoryRefresh(d.metrics, len(l.apps), nil)
		return len(l.apps), nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("refresh applications: %w", res.Err)
		}
		return nil
	}
}

// newListing indexes apps, dropping blank and duplicate IDs (first wins).
func newListing(apps []sso.Application) *listing {
	l := &listing{
		apps: make([]sso.Application, 0, len(apps)),
		byID: make(map[string]sso.Application, len(apps)),
	}
	for _, a := range apps {
		id := normalizeID(a.ID)
		if id == "" {
			continue
		}
		if _, dup := l.byID[id]; dup {
			continue
		}
		a.ID = id
		l.byID[id] = a
		l.apps = append(l.apps, a)
	}
	return l
}

func (d *Directory) listing(primary domainauth.Credential) (*listing, bool) {
	if d == nil {
		return nil, false
	}
	return d.cache.Get(sessionKey(primary))
}

// Applications returns a copy of primary's cached list in directory order.
func (d *Directory) Applications(primary domainauth.Credential) []sso.Application {
	l, ok := d.listing(primary)
	if !ok {
		return nil
	}
	return append([]sso.Application(nil), l.apps...)
}

// Lookup finds an application in primary's list by ID, case-insensitively.
func (d *Directory) Lookup(primary domainauth.Credential, id string) (sso.Application, bool) {
	l, ok := d.listing(primary)
	if !ok {
		return sso.Application{}, false
	}
	a, ok := l.byID[normalizeID(id)]
	return a, ok
}

// Loaded reports whether primary's list has been fetched and not expired.
func (d *Directory) Loaded(primary domainauth.Credential) bool {
	_, ok := d.listing(primary)
	return ok
}

// Forget drops primary's list, e.g. on sign-out.
func (d *Directory) Forget(primary domainauth.Credential) {
	if d == nil {
		return
	}
	d.cache.Remove(sessionKey(primary))
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
