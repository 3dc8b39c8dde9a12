package rbac

import (
	"net/http"
)

var defaultChecker = NewChecker(nil)

func guard(allowed func(roles []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || !allowed(p.Roles) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require enforces a single permission.
func Require(perm string) func(http.Handler) http.Handler {
	return guard(func(roles []string) bool { return defaultChecker.Has(roles, perm) })
}

// RequireAny enforces that the roles grant at least one of the permissions.
func RequireAny(perms ...string) func(http.Handler) http.Handler {
	return guard(func(roles []string) bool { return defaultChecker.Any(roles, perms...) })
}
