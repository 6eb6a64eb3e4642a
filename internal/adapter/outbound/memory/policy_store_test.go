package memory

import (
	"testing"

	"github.com/routewarden/routewarden/internal/domain/guard"
)

func TestPolicyStoreCopySemantics(t *testing.T) {
	seed := []guard.RoutePolicy{
		{Pattern: "/admin/*", RequiredRoles: []guard.Role{"admin"}, RequiresAuth: true},
	}
	store := NewPolicyStore(seed)

	// Mutating the seed after construction must not affect the store.
	seed[0].Pattern = "/mutated"
	seed[0].RequiredRoles[0] = "mutated"

	got, err := store.GetAllPolicies(t.Context())
	if err != nil {
		t.Fatalf("GetAllPolicies error: %v", err)
	}
	if got[0].Pattern != "/admin/*" || got[0].RequiredRoles[0] != "admin" {
		t.Fatalf("store leaked seed mutation: %+v", got[0])
	}

	// Mutating the returned copy must not affect the store.
	got[0].RequiredRoles[0] = "mutated"
	again, _ := store.GetAllPolicies(t.Context())
	if again[0].RequiredRoles[0] != "admin" {
		t.Fatalf("store leaked read-copy mutation: %+v", again[0])
	}
}

func TestPolicyStoreReplace(t *testing.T) {
	store := NewPolicyStore([]guard.RoutePolicy{{Pattern: "/a"}})

	if err := store.ReplacePolicies(t.Context(), []guard.RoutePolicy{{Pattern: "/b"}, {Pattern: "/c"}}); err != nil {
		t.Fatalf("ReplacePolicies error: %v", err)
	}

	got, err := store.GetAllPolicies(t.Context())
	if err != nil {
		t.Fatalf("GetAllPolicies error: %v", err)
	}
	if len(got) != 2 || got[0].Pattern != "/b" {
		t.Fatalf("GetAllPolicies after replace = %+v", got)
	}
}
