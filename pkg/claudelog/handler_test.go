package claudelog

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/analytiqhub/docrouter/internal/auth"
	"github.com/analytiqhub/docrouter/internal/org"
)

func withOrg(r *http.Request) *http.Request {
	return r.WithContext(org.NewContext(r.Context(), &org.Info{ID: "org1", Name: "Acme"}))
}

func withOrgScopedToken(r *http.Request) *http.Request {
	return r.WithContext(auth.NewContext(r.Context(), &auth.Identity{UserID: "u1", OrganizationID: "org1"}))
}

func newIngestRouter() chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, nil, nil)
	r := chi.NewRouter()
	r.Mount("/claude", h.AccountRoutes())
	return r
}

func newTestRouter() chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, nil, nil)
	r := chi.NewRouter()
	r.Mount("/claude", h.Routes())
	return r
}

func TestHandleIngest_NoOrganization(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/claude/log", nil)
	w := httptest.NewRecorder()
	newIngestRouter().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestHandleIngest_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty array", `[]`},
		{"missing payload", `[{"stream_id":"s1","seq":1}]`},
		{"mismatched stream_id", `[{"stream_id":"s1","seq":1,"payload":"x"},{"stream_id":"s2","seq":2,"payload":"y"}]`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/claude/log", strings.NewReader(c.body))
			req = withOrgScopedToken(req)
			w := httptest.NewRecorder()
			newIngestRouter().ServeHTTP(w, req)
			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestHandleList_NoOrganization(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/claude/logs?stream_id=s1", nil)
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestHandleList_MissingStreamID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/claude/logs", nil)
	req = withOrg(req)
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestHandleList_BadAfterSeq(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/claude/logs?stream_id=s1&after_seq=notanumber", nil)
	req = withOrg(req)
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
