// Package role maps roles to their permission grants.
//
// The grant table is defined once at configuration time and treated as
// immutable for the process lifetime. Lookups for roles outside the table
// fail loudly with ErrUnknownRole rather than returning an empty set, so a
// misconfigured deployment is caught instead of silently stripping access.
package role

import (
	"errors"
	"fmt"
	"sort"

	"github.com/routewarden/routewarden/internal/domain/guard"
)

// ErrUnknownRole is returned when a role is absent from the grant table.
// This is a configuration defect, not a user error.
var ErrUnknownRole = errors.New("unknown role")

// Resolver answers permission-membership questions for roles.
type Resolver struct {
	grants map[guard.Role]map[guard.Permission]struct{}
}

// NewResolver builds a resolver from a role -> permissions table.
// The input is copied; later mutation of the argument has no effect.
func NewResolver(grants map[guard.Role][]guard.Permission) *Resolver {
	r := &Resolver{grants: make(map[guard.Role]map[guard.Permission]struct{}, len(grants))}
	for role, perms := range grants {
		set := make(map[guard.Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		r.grants[role] = set
	}
	return r
}

// KnownRole reports whether the role exists in the grant table.
func (r *Resolver) KnownRole(role guard.Role) bool {
	_, ok := r.grants[role]
	return ok
}

// Roles returns all known roles in sorted order.
func (r *Resolver) Roles() []guard.Role {
	roles := make([]guard.Role, 0, len(r.grants))
	for role := range r.grants {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// PermissionsOf returns the permission set granted to a role, sorted.
// Returns ErrUnknownRole for roles outside the table.
func (r *Resolver) PermissionsOf(role guard.Role) ([]guard.Permission, error) {
	set, ok := r.grants[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	perms := make([]guard.Permission, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms, nil
}

// HasPermission reports whether any role held by the identity grants the
// permission. Returns ErrUnknownRole if the identity carries a role outside
// the table, so misconfiguration is never masked as "no permission".
func (r *Resolver) HasPermission(identity guard.Identity, perm guard.Permission) (bool, error) {
	granted := false
	for _, role := range identity.Roles {
		set, ok := r.grants[role]
		if !ok {
			return false, fmt.Errorf("%w: %q", ErrUnknownRole, role)
		}
		if _, ok := set[perm]; ok {
			granted = true
		}
	}
	return granted, nil
}

// ValidateRoles checks that every role in the list exists in the table.
// Used at config load to reject policies referencing undefined roles.
func (r *Resolver) ValidateRoles(roles []guard.Role) error {
	for _, role := range roles {
		if !r.KnownRole(role) {
			return fmt.Errorf("%w: %q", ErrUnknownRole, role)
		}
	}
	return nil
}
