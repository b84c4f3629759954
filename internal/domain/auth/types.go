package auth

// Package auth contains domain-level types for authentication, sessions and roles.
// It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Role represents an application's authorization role.
// The set is closed; see Roles.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleEmployee   Role = "EMPLOYEE"
)

// Roles returns every valid role, most privileged first.
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleEmployee}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleEmployee:
		return true
	default:
		return false
	}
}

// ParseRole normalizes a role string coming from a backend payload.
// "super-admin", "Super Admin" and "SUPER_ADMIN" all map to RoleSuperAdmin.
func ParseRole(s string) (Role, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	r := Role(norm)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Credential is an opaque bearer token. Its contents are never inspected.
type Credential string

// IsZero reports whether the credential is absent.
func (c Credential) IsZero() bool { return c == "" }

// LogValue keeps credentials out of structured logs.
func (c Credential) LogValue() slog.Value {
	if c.IsZero() {
		return slog.StringValue("")
	}
	return slog.StringValue("[redacted]")
}

// Identity represents the authenticated principal returned by an IdP.
// Adapters map provider-specific claims into this shape; AccessToken becomes
// the primary credential presented to the HR backend.
type Identity struct {
	UserID      string
	FirstName   string
	LastName    string
	Email       string
	Groups      []string
	AccessToken Credential
	ExpiresAt   time.Time
}

// Profile holds display-only attributes. None of them take part in authorization.
type Profile struct {
	FirstName    string     `json:"first_name,omitempty"`
	LastName     string     `json:"last_name,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Position     string     `json:"position,omitempty"`
	Division     string     `json:"division,omitempty"`
	BusinessUnit string     `json:"business_unit,omitempty"`
	AvatarURL    string     `json:"avatar_url,omitempty"`
	HireDate     *time.Time `json:"hire_date,omitempty"`
}

// User is the resolved account behind a primary credential.
type User struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Role     Role    `json:"role"`
	Profile  Profile `json:"profile"`
}

// DisplayName returns the best human-readable name for the user.
func (u User) DisplayName() string {
	full := strings.TrimSpace(u.Profile.FirstName + " " + u.Profile.LastName)
	switch {
	case full != "":
		return full
	case u.Username != "":
		return u.Username
	default:
		return u.Email
	}
}

// UserPatch is a partial update of a User. Nil fields are left untouched.
// Role is deliberately absent: it only changes through re-authentication.
type UserPatch struct {
	Username     *string
	Email        *string
	FirstName    *string
	LastName     *string
	Phone        *string
	Position     *string
	Division     *string
	BusinessUnit *string
	AvatarURL    *string
	HireDate     *time.Time
}

// Apply returns a copy of u with the non-nil fields of p merged in.
func (u User) Apply(p UserPatch) User {
	out := u
	setIf(&out.Username, p.Username)
	setIf(&out.Email, p.Email)
	setIf(&out.Profile.FirstName, p.FirstName)
	setIf(&out.Profile.LastName, p.LastName)
	setIf(&out.Profile.Phone, p.Phone)
	setIf(&out.Profile.Position, p.Position)
	setIf(&out.Profile.Division, p.Division)
	setIf(&out.Profile.BusinessUnit, p.BusinessUnit)
	setIf(&out.Profile.AvatarURL, p.AvatarURL)
	if p.HireDate != nil {
		hd := *p.HireDate
		out.Profile.HireDate = &hd
	}
	return out
}

func setIf(dst, src *string) {
	if src != nil {
		*dst = *src
	}
}

// ResolutionState tracks where a session is in its lifecycle.
type ResolutionState string

const (
	StateUnresolved    ResolutionState = "unresolved"
	StateResolving     ResolutionState = "resolving"
	StateAuthenticated ResolutionState = "resolved-authenticated"
	StateAnonymous     ResolutionState = "resolved-anonymous"
)

// Terminal reports whether no further transition is pending.
func (s ResolutionState) Terminal() bool {
	return s == StateAuthenticated || s == StateAnonymous
}

// Snapshot is an immutable view of a session at one point in time.
// Generation increases on every credential change (login, logout, start).
type Snapshot struct {
	HasCredential bool
	User          *User
	State         ResolutionState
	Generation    uint64
}

// Authenticated reports whether the snapshot carries a resolved user.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.User != nil
}
