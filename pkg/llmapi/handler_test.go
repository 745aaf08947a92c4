package llmapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/analytiqhub/docrouter/internal/auth"
	"github.com/analytiqhub/docrouter/internal/org"
	"github.com/analytiqhub/docrouter/pkg/llmprovider"
)

func withOrg(r *http.Request) *http.Request {
	ctx := org.NewContext(r.Context(), &org.Info{ID: "org1", Name: "Acme"})
	return r.WithContext(ctx)
}

func newTestRouter() chi.Router {
	h := NewHandler(nil, nil, nil, nil, nil, time.Second)
	router := chi.NewRouter()
	router.Mount("/llm", h.Routes())
	return router
}

type fakeMembership struct{ role string }

func (f *fakeMembership) Lookup(_ context.Context, _, _ string) (string, string, error) {
	return "Acme", f.role, nil
}

// newOrgScopedRouter mounts llmapi behind org.Middleware so handlers that
// check org.RoleFromContext (run_llm_chat's admin gate) see a real
// per-organization role, the same way it would in the full API server.
func newOrgScopedRouter(role string) chi.Router {
	h := NewHandler(nil, nil, nil, nil, llmprovider.NewRegistry(), time.Second)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := chi.NewRouter()
	router.Route("/orgs/{org_id}", func(r chi.Router) {
		r.Use(org.Middleware(&fakeMembership{role: role}, logger))
		r.Mount("/llm", h.Routes())
	})
	return router
}

func withIdentity(r *http.Request, role string) *http.Request {
	ctx := auth.NewContext(r.Context(), &auth.Identity{UserID: "u1", Role: role})
	return r.WithContext(ctx)
}

func TestHandleRun_NoOrganization(t *testing.T) {
	router := newTestRouter()
	r := httptest.NewRequest(http.MethodPost, "/llm/doc1/run", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestHandleGetResult_NoOrganization(t *testing.T) {
	router := newTestRouter()
	r := httptest.NewRequest(http.MethodGet, "/llm/doc1/result", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestHandleUpdateResult_Validation(t *testing.T) {
	router := newTestRouter()
	r := httptest.NewRequest(http.MethodPut, "/llm/doc1/result", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "application/json")
	r = withOrg(r)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d, body = %s", w.Code, http.StatusUnprocessableEntity, w.Body.String())
	}
}

func TestHandleChat_NotAdmin(t *testing.T) {
	router := newOrgScopedRouter(auth.RoleUser)
	body := `{"model":"claude-3-5-sonnet-20241022","messages":[{"role":"user","content":"hi"}]}`
	r := httptest.NewRequest(http.MethodPost, "/orgs/org1/llm/chat", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r = withIdentity(r, auth.RoleUser)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d, body = %s", w.Code, http.StatusForbidden, w.Body.String())
	}
}

func TestHandleChat_UnknownModel(t *testing.T) {
	router := newOrgScopedRouter(auth.RoleAdmin)
	body := `{"model":"nonexistent-model","messages":[{"role":"user","content":"hi"}]}`
	r := httptest.NewRequest(http.MethodPost, "/orgs/org1/llm/chat", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r = withIdentity(r, auth.RoleAdmin)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d, body = %s", w.Code, http.StatusUnprocessableEntity, w.Body.String())
	}
}
