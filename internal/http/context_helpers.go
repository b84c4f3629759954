package httpx

import (
	"context"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
)

// sessionKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same key.
type sessionKey struct{}

// SetSessionInContext returns a child context that carries the request session.
// If rs is nil, the original ctx is returned unchanged.
func SetSessionInContext(ctx context.Context, rs *RequestSession) context.Context {
	if rs == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, rs)
}

// GetSessionFromContext returns the request session and whether one is present.
func GetSessionFromContext(ctx context.Context) (*RequestSession, bool) {
	rs, ok := ctx.Value(sessionKey{}).(*RequestSession)
	return rs, ok && rs != nil
}

// CurrentUser returns the resolved user of the request session, or nil.
func CurrentUser(ctx context.Context) *domainauth.User {
	rs, ok := GetSessionFromContext(ctx)
	if !ok || rs.Auth == nil {
		return nil
	}
	return rs.Auth.Snapshot().User
}
