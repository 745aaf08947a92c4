package org

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/analytiqhub/docrouter/internal/auth"
	"github.com/analytiqhub/docrouter/internal/httpserver"
)

// Membership resolves a user's role within a specific organization.
type Membership interface {
	// Lookup returns the organization's name and the user's role within it.
	// It returns apperr.NotFound if the organization does not exist or the
	// user is not a member.
	Lookup(ctx context.Context, organizationID, userID string) (name, role string, err error)
}

// Middleware resolves the organization named by the {org_id} chi URL
// parameter, verifies the authenticated identity is a member, and stores
// both Info and the per-organization role in the request context. Must run
// after auth.Middleware.
//
// An access token already scoped to a single organization (Identity.
// OrganizationID set) must match the path's {org_id}, or the request is
// rejected — an org-scoped token cannot be used to reach a different
// organization's data.
func Middleware(membership Membership, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := auth.FromContext(r.Context())
			if identity == nil {
				httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			orgID := chi.URLParam(r, "org_id")
			if orgID == "" {
				httpserver.RespondError(w, http.StatusBadRequest, "validation", "missing organization id")
				return
			}

			if identity.OrganizationID != "" && identity.OrganizationID != orgID {
				httpserver.RespondError(w, http.StatusForbidden, "forbidden", "access token is scoped to a different organization")
				return
			}

			name, role, err := membership.Lookup(r.Context(), orgID, identity.UserID)
			if err != nil {
				logger.Warn("organization membership lookup failed", "org_id", orgID, "user_id", identity.UserID, "error", err)
				httpserver.RespondError(w, http.StatusForbidden, "forbidden", "not a member of this organization")
				return
			}

			ctx := NewContext(r.Context(), &Info{ID: orgID, Name: name})
			ctx = context.WithValue(ctx, orgRoleKey, role)

			logger.Debug("organization resolved", "org_id", orgID, "role", role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type ctxRoleKey string

const orgRoleKey ctxRoleKey = "org_role"

// RoleFromContext returns the caller's role within the resolved organization.
func RoleFromContext(ctx context.Context) string {
	v, _ := ctx.Value(orgRoleKey).(string)
	return v
}
