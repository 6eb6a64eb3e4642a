package guard

import "context"

// Engine computes authorization decisions for (identity, path) pairs.
type Engine interface {
	// Decide evaluates the identity against the policy matching path.
	// The path may carry a query string; matching uses only the path part.
	// Returns an error only for configuration defects (unknown role).
	Decide(ctx context.Context, identity Identity, path string) (Decision, error)
}

// PolicyStore supplies the route policy table. The table is read-only for
// decision callers; reconfiguration replaces the whole set so readers never
// observe a partially updated table.
type PolicyStore interface {
	// GetAllPolicies returns the current policy table.
	GetAllPolicies(ctx context.Context) ([]RoutePolicy, error)
	// ReplacePolicies swaps the entire policy table.
	ReplacePolicies(ctx context.Context, policies []RoutePolicy) error
}
