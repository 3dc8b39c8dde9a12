package rbac

import (
	"context"
	"strings"
)

type Checker struct {
	RolePermissions map[string][]string
}

func NewChecker(rp map[string][]string) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	return &Checker{RolePermissions: rp}
}

// Has reports whether any of roles grants perm.
func (c *Checker) Has(roles []string, perm string) bool {
	for _, role := range roles {
		for _, p := range c.RolePermissions[role] {
			if matchPerm(p, perm) {
				return true
			}
		}
	}
	return false
}

func (c *Checker) Any(roles []string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(roles, p) {
			return true
		}
	}
	return false
}

func matchPerm(pattern, perm string) bool {
	if pattern == "*" || pattern == perm {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(perm, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

// Principal is the authenticated caller. It is passed explicitly into every
// service call that checks ownership.
type Principal struct {
	UserID string
	Roles  []string
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (p Principal) Authenticated() bool { return p.UserID != "" }

// ---- principal in context ----

type ctxKey struct{}

var ctxKeyPrincipal = ctxKey{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return p, ok && p.Authenticated()
}
