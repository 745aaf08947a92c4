// Package auth authenticates DocRouter requests and exposes the resulting
// Identity through the request context, following the teacher's layered
// authentication pattern reduced to DocRouter's two-role model.
package auth

import "context"

// Roles supported by DocRouter's RBAC.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// ValidRoles lists all known roles in descending privilege order.
var ValidRoles = []string{RoleAdmin, RoleUser}

// IsValidRole reports whether role is a recognised RBAC role.
func IsValidRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}

// Method describes how the caller was authenticated.
const (
	MethodJWT         = "jwt"
	MethodAccessToken = "access_token"
)

// Identity represents the authenticated caller for the current request.
// Role is the account-level role; the per-organization role, which may
// differ, is resolved by the org middleware and read with
// org.RoleFromContext.
type Identity struct {
	UserID         string
	Email          string
	Name           string
	Role           string
	OrganizationID string // set for org-scoped access tokens; empty otherwise
	AccessTokenID  string // non-empty for access-token authentication
	Method         string
}

type ctxKey string

const identityKey ctxKey = "auth_identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context. Returns nil if no
// identity is set.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}
