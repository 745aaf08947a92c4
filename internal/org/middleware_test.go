package org

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/analytiqhub/docrouter/internal/apperr"
	"github.com/analytiqhub/docrouter/internal/auth"
)

type fakeMembership struct {
	name string
	role string
	err  error
}

func (f *fakeMembership) Lookup(_ context.Context, _, _ string) (string, string, error) {
	return f.name, f.role, f.err
}

func newTestRouter(membership Membership) chi.Router {
	r := chi.NewRouter()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r.Route("/orgs/{org_id}", func(sr chi.Router) {
		sr.Use(Middleware(membership, logger))
		sr.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			info := FromContext(r.Context())
			w.Header().Set("X-Org-Name", info.Name)
			w.Header().Set("X-Org-Role", RoleFromContext(r.Context()))
			w.WriteHeader(http.StatusOK)
		})
	})
	return r
}

func withIdentity(r *http.Request, id *auth.Identity) *http.Request {
	return r.WithContext(auth.NewContext(r.Context(), id))
}

func TestMiddleware_ResolvesMembership(t *testing.T) {
	router := newTestRouter(&fakeMembership{name: "Acme", role: auth.RoleUser})

	req := httptest.NewRequest(http.MethodGet, "/orgs/org1/ping", nil)
	req = withIdentity(req, &auth.Identity{UserID: "user1", Role: auth.RoleUser})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("X-Org-Name"); got != "Acme" {
		t.Errorf("org name = %q, want %q", got, "Acme")
	}
	if got := rec.Header().Get("X-Org-Role"); got != auth.RoleUser {
		t.Errorf("org role = %q, want %q", got, auth.RoleUser)
	}
}

func TestMiddleware_NoIdentity(t *testing.T) {
	router := newTestRouter(&fakeMembership{name: "Acme", role: auth.RoleUser})

	req := httptest.NewRequest(http.MethodGet, "/orgs/org1/ping", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestMiddleware_NotAMember(t *testing.T) {
	router := newTestRouter(&fakeMembership{err: apperr.New(apperr.NotFound, "not a member")})

	req := httptest.NewRequest(http.MethodGet, "/orgs/org1/ping", nil)
	req = withIdentity(req, &auth.Identity{UserID: "user1", Role: auth.RoleUser})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestMiddleware_OrgScopedTokenMismatch(t *testing.T) {
	router := newTestRouter(&fakeMembership{name: "Acme", role: auth.RoleUser})

	req := httptest.NewRequest(http.MethodGet, "/orgs/org1/ping", nil)
	req = withIdentity(req, &auth.Identity{UserID: "user1", Role: auth.RoleUser, OrganizationID: "org2"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}
