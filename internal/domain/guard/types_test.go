package guard

import "testing"

func TestIdentityHasRole(t *testing.T) {
	identity := Identity{SubjectID: "u1", Roles: []Role{"user", "moderator"}, Authenticated: true}

	if !identity.HasRole("user") {
		t.Error("HasRole(user) = false, want true")
	}
	if identity.HasRole("admin") {
		t.Error("HasRole(admin) = true, want false")
	}
}

func TestIdentityHasAnyRole(t *testing.T) {
	identity := Identity{SubjectID: "u1", Roles: []Role{"user"}}

	if !identity.HasAnyRole("admin", "user") {
		t.Error("HasAnyRole(admin, user) = false, want true")
	}
	if identity.HasAnyRole("admin", "moderator") {
		t.Error("HasAnyRole(admin, moderator) = true, want false")
	}
	if identity.HasAnyRole() {
		t.Error("HasAnyRole() = true, want false")
	}
}

func TestDecisionContextRoundTrip(t *testing.T) {
	d := Decision{Allowed: false, RedirectTo: "/", Reason: ReasonMissingRole, Pattern: "/admin/*"}

	ctx := WithDecision(t.Context(), d)
	if got, ok := DecisionFromContext(ctx); !ok || got != d {
		t.Fatalf("DecisionFromContext = (%v, %v), want %v", got, ok, d)
	}
	if _, ok := DecisionFromContext(t.Context()); ok {
		t.Fatal("DecisionFromContext(empty) reported a stored decision")
	}
}
