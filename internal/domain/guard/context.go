package guard

import "context"

// decisionKey is the context key type for guard decisions.
type decisionKey struct{}

// WithDecision stores a guard decision in the context. The embeddable HTTP
// middleware uses this so downstream handlers can inspect the decision that
// admitted the request.
func WithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

// DecisionFromContext retrieves a guard decision from the context.
// The second return value reports whether one was stored.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(Decision)
	return d, ok
}
