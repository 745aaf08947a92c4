package auth

import (
	"net/http"

	"github.com/analytiqhub/docrouter/internal/httpserver"
)

// RequireAuth rejects requests with no resolved Identity in context. Mount
// after Middleware; Middleware itself already rejects unauthenticated
// requests, so this guards handlers reachable via other entry points
// (e.g. routes mounted without Middleware in tests).
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects requests whose Identity.Role is not role. DocRouter
// has exactly two roles (admin, user); admin always satisfies a "user"
// requirement too.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			if id.Role != RoleAdmin && id.Role != role {
				httpserver.RespondError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
