package credit

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/analytiqhub/docrouter/internal/org"
)

func withOrgForTest(r *http.Request) *http.Request {
	return r.WithContext(org.NewContext(r.Context(), &org.Info{ID: "org1", Name: "Acme"}))
}

func newTestRouter() chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, NewStore(nil))
	r := chi.NewRouter()
	r.Mount("/payments", h.Routes())
	return r
}

func TestHandleBalance_NoOrganization(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/payments/balance", nil)
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestHandleUsageRange_NoOrganization(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/payments/usage/range", nil)
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestHandleUsageRange_BadFrom(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/payments/usage/range?from=notatime", nil)
	req = withOrgForTest(req)
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
