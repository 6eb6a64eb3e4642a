// Package memory provides in-memory store implementations.
package memory

import (
	"context"
	"sync"

	"github.com/routewarden/routewarden/internal/domain/guard"
)

// PolicyStore implements guard.PolicyStore with an in-memory slice.
// Thread-safe for concurrent access. Reads and replacements copy the
// table, so callers can never mutate stored policies.
type PolicyStore struct {
	mu       sync.RWMutex
	policies []guard.RoutePolicy
}

// NewPolicyStore creates a policy store seeded with the given table.
func NewPolicyStore(policies []guard.RoutePolicy) *PolicyStore {
	s := &PolicyStore{}
	s.policies = copyPolicies(policies)
	return s
}

// GetAllPolicies returns a copy of the current policy table.
func (s *PolicyStore) GetAllPolicies(ctx context.Context) ([]guard.RoutePolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyPolicies(s.policies), nil
}

// ReplacePolicies swaps the entire policy table. There is deliberately no
// per-policy mutation API; partial updates could expose readers to an
// inconsistent table.
func (s *PolicyStore) ReplacePolicies(ctx context.Context, policies []guard.RoutePolicy) error {
	fresh := copyPolicies(policies)
	s.mu.Lock()
	s.policies = fresh
	s.mu.Unlock()
	return nil
}

// copyPolicies deep-copies a policy slice, including role slices.
func copyPolicies(policies []guard.RoutePolicy) []guard.RoutePolicy {
	out := make([]guard.RoutePolicy, len(policies))
	for i, p := range policies {
		out[i] = p
		out[i].RequiredRoles = append([]guard.Role(nil), p.RequiredRoles...)
	}
	return out
}

// Compile-time interface verification.
var _ guard.PolicyStore = (*PolicyStore)(nil)
