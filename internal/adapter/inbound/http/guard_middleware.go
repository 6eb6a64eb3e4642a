package http

import (
	"net/http"

	"github.com/routewarden/routewarden/internal/domain/guard"
)

// IdentityResolver extracts the caller identity from a request, typically
// from a session cookie or a verified token. Returning the zero Identity
// means an anonymous, unauthenticated visitor.
type IdentityResolver func(r *http.Request) guard.Identity

// GuardMiddleware enforces guard decisions on an embedded application:
// denied requests are redirected (303 for non-GET so the browser lands on
// the target with GET), allowed requests proceed with the decision stored
// in the request context for handlers that want the matched pattern.
func GuardMiddleware(engine guard.Engine, resolve IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := resolve(r)

			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path += "?" + r.URL.RawQuery
			}

			decision, err := engine.Decide(r.Context(), identity, path)
			if err != nil {
				LoggerFromContext(r.Context()).Error("guard decision failed",
					"path", r.URL.Path, "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			if !decision.Allowed {
				status := http.StatusFound
				if r.Method != http.MethodGet && r.Method != http.MethodHead {
					status = http.StatusSeeOther
				}
				http.Redirect(w, r, decision.RedirectTo, status)
				return
			}

			ctx := guard.WithDecision(r.Context(), decision)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
