// Package guard contains domain types for route authorization decisions.
package guard

// Role is an enumerable tag assigned to an identity (e.g. "admin", "user").
// The set of valid roles is fixed by configuration; the role resolver fails
// loudly when it sees a role outside that set.
type Role string

// Permission is an opaque capability tag granted by one or more roles
// (e.g. "delete:comments").
type Permission string

// Identity represents the resolved caller state for one decision.
// It is supplied by an external authentication collaborator and is
// immutable for the duration of the call.
type Identity struct {
	// SubjectID is an opaque identifier for the caller.
	SubjectID string
	// Roles are the roles held by the caller.
	Roles []Role
	// Authenticated reports whether the caller has a verified session.
	Authenticated bool
}

// HasRole returns true if the identity holds the specified role.
func (i *Identity) HasRole(role Role) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole returns true if the identity holds any of the specified roles.
func (i *Identity) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// Reason explains a guard decision.
type Reason string

const (
	// ReasonNone means access was allowed (or no policy applied).
	ReasonNone Reason = "none"
	// ReasonNotAuthenticated means the policy requires authentication and
	// the identity has none. The decision carries a sign-in redirect that
	// preserves the originally requested path.
	ReasonNotAuthenticated Reason = "not_authenticated"
	// ReasonMissingRole means the identity holds none of the roles the
	// matched policy requires.
	ReasonMissingRole Reason = "missing_role"
	// ReasonAuthOnlyPage means an authenticated identity requested a page
	// that is only meaningful to unauthenticated visitors (e.g. sign-in).
	ReasonAuthOnlyPage Reason = "auth_only_page"
	// ReasonConditionFailed means the matched policy's condition expression
	// evaluated to false for this request.
	ReasonConditionFailed Reason = "condition_failed"
)

// RoutePolicy is the access requirement for one route pattern.
type RoutePolicy struct {
	// Pattern is an exact absolute path ("/billing") or a prefix wildcard
	// ending in "/*" ("/admin/*").
	Pattern string
	// RequiredRoles is the non-empty set of roles, any one of which
	// satisfies the policy.
	RequiredRoles []Role
	// RequiresAuth requires an authenticated identity before the role
	// check applies.
	RequiresAuth bool
	// Fallback is the redirect target for role or condition denials.
	// Empty means the engine's configured default fallback.
	Fallback string
	// Condition is an optional CEL expression over path, roles,
	// authenticated, and subject_id. Empty means "true".
	Condition string
}

// Decision is the outcome of one guard evaluation. It is produced fresh
// per call and consumed immediately by the caller, which performs the
// actual redirect or permits rendering.
type Decision struct {
	// Allowed is true if the request may proceed.
	Allowed bool
	// RedirectTo is the path the caller should navigate to when Allowed
	// is false. Always set on denials; empty on allows.
	RedirectTo string
	// Reason explains the decision.
	Reason Reason
	// Pattern is the policy pattern that produced the decision, empty when
	// no policy matched.
	Pattern string
}
