package auth

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Capability is a named permission derived from a role.
type Capability string

const (
	CapManageEmployees     Capability = "manage-employees"
	CapManageDivisions     Capability = "manage-divisions"
	CapManageBusinessUnits Capability = "manage-business-units"
	CapViewAnalytics       Capability = "view-analytics"
	CapViewOrgChart        Capability = "view-org-chart"
	CapEditOwnProfile      Capability = "edit-own-profile"

	// CapAccessApplication permits launching at least one application;
	// which ones is decided by CanAccessApplication.
	CapAccessApplication Capability = "access-application"
)

// ApplicationNaruku is the secondary internal application reachable through SSO.
const ApplicationNaruku = "naruku"

type capabilitySet map[Capability]bool

// rolePolicies must hold exactly one entry per Role; init enforces it.
var rolePolicies = map[Role]capabilitySet{
	RoleSuperAdmin: {
		CapManageEmployees:     true,
		CapManageDivisions:     true,
		CapManageBusinessUnits: true,
		CapViewAnalytics:       true,
		CapViewOrgChart:        true,
		CapEditOwnProfile:      true,
		CapAccessApplication:   true,
	},
	RoleAdmin: {
		CapViewOrgChart:      true,
		CapEditOwnProfile:    true,
		CapAccessApplication: true,
	},
	RoleEmployee: {
		CapViewOrgChart:      true,
		CapEditOwnProfile:    true,
		CapAccessApplication: true,
	},
}

// applicationPolicies lists, per application, which roles may launch it.
// Applications missing from the table fall back to defaultApplicationRoles.
var applicationPolicies = map[string][]Role{
	ApplicationNaruku: {RoleSuperAdmin, RoleAdmin, RoleEmployee},
}

var defaultApplicationRoles = []Role{RoleSuperAdmin}

func init() {
	for _, r := range Roles() {
		if _, ok := rolePolicies[r]; !ok {
			panic(fmt.Sprintf("auth: role %s has no capability policy", r))
		}
	}
	if len(rolePolicies) != len(Roles()) {
		panic("auth: capability policy lists an unknown role")
	}
}

// CanAccess reports whether u is present and holds one of roles.
func CanAccess(u *User, roles ...Role) bool {
	if u == nil {
		return false
	}
	return slices.Contains(roles, u.Role)
}

// HasRole reports whether u is present and holds exactly role.
func HasRole(u *User, role Role) bool {
	return CanAccess(u, role)
}

// Allows reports whether u's role grants capability c.
func Allows(u *User, c Capability) bool {
	if u == nil {
		return false
	}
	return rolePolicies[u.Role][c]
}

// CanAccessApplication reports whether u may launch the named application.
// Names compare case-insensitively.
func CanAccessApplication(u *User, application string) bool {
	if u == nil {
		return false
	}
	roles, ok := applicationPolicies[strings.ToLower(strings.TrimSpace(application))]
	if !ok {
		roles = defaultApplicationRoles
	}
	return slices.Contains(roles, u.Role)
}

// CapabilitiesOf lists u's capabilities in sorted order. Nil for anonymous.
func CapabilitiesOf(u *User) []Capability {
	if u == nil {
		return nil
	}
	set := rolePolicies[u.Role]
	out := make([]Capability, 0, len(set))
	for c, ok := range set {
		if ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
