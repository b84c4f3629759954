// Package usercache memoizes successful whoami lookups for a short TTL.
package usercache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/ports"
)

// Defaults for Config.
const (
	DefaultTTL     = 30 * time.Second
	DefaultEntries = 1024
)

// Config configures the cache.
type Config struct {
	// TTL of a cached user. Zero means DefaultTTL; negative disables caching.
	TTL     time.Duration
	Entries int
}

// Resolver caches the users returned by next, keyed by a SHA-256 of the
// credential so raw tokens never sit in memory as map keys. Failures are
// never cached.
type Resolver struct {
	next  ports.UserResolver
	cache *lru.LRU[string, domainauth.User]

	hits   atomic.Int64
	misses atomic.Int64
}

var _ ports.UserResolver = (*Resolver)(nil)

// New wraps next. With caching disabled it returns next unchanged.
func New(next ports.UserResolver, cfg Config) ports.UserResolver {
	if cfg.TTL < 0 {
		return next
	}
	return NewResolver(next, cfg)
}

// NewResolver always returns the caching decorator.
func NewResolver(next ports.UserResolver, cfg Config) *Resolver {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entries := cfg.Entries
	if entries <= 0 {
		entries = DefaultEntries
	}
	return &Resolver{
		next:  next,
		cache: lru.NewLRU[string, domainauth.User](entries, nil, ttl),
	}
}

func key(cred domainauth.Credential) string {
	sum := sha256.Sum256([]byte(cred))
	return hex.EncodeToString(sum[:])
}

// CurrentUser implements ports.UserResolver.
func (r *Resolver) CurrentUser(ctx context.Context, cred domainauth.Credential) (domainauth.User, error) {
	k := key(cred)
	if u, ok := r.cache.Get(k); ok {
		r.hits.Add(1)
		return u, nil
	}
	r.misses.Add(1)

	u, err := r.next.CurrentUser(ctx, cred)
	if err != nil {
		return domainauth.User{}, err
	}
	r.cache.Add(k, u)
	return u, nil
}

// Forget drops the cached user for cred, e.g. on logout.
func (r *Resolver) Forget(cred domainauth.Credential) {
	r.cache.Remove(key(cred))
}

// Stats reports hit and miss counters.
func (r *Resolver) Stats() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}
