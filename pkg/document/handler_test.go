package document

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/analytiqhub/docrouter/internal/org"
)

func withOrg(r *http.Request) *http.Request {
	ctx := org.NewContext(r.Context(), &org.Info{ID: "org1", Name: "Acme"})
	return r.WithContext(ctx)
}

func newTestRouter() chi.Router {
	h := NewHandler(nil, nil, nil, nil, nil)
	router := chi.NewRouter()
	router.Mount("/documents", h.Routes())
	return router
}

func TestHandleUpload_NoOrganization(t *testing.T) {
	router := newTestRouter()
	body := `[{"name":"a.pdf","content":"data:application/pdf;base64,aGVsbG8="}]`
	r := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(body))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestHandleUpload_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "empty documents array",
			body:       `[]`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "missing name",
			body:       `[{"content":"data:application/pdf;base64,aGVsbG8="}]`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "missing content",
			body:       `[{"name":"a.pdf"}]`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "invalid JSON",
			body:       `{bad}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty body",
			body:       ``,
			wantStatus: http.StatusBadRequest,
		},
	}

	router := newTestRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			r = withOrg(r)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestHandleList_NoOrganization(t *testing.T) {
	router := newTestRouter()
	r := httptest.NewRequest(http.MethodGet, "/documents", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestHandleList_BadSkipLimit(t *testing.T) {
	router := newTestRouter()
	r := httptest.NewRequest(http.MethodGet, "/documents?limit=-1", nil)
	r = withOrg(r)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleOCRText_BadPageNum(t *testing.T) {
	router := newTestRouter()
	r := httptest.NewRequest(http.MethodGet, "/documents/doc1/ocr/text?page_num=abc", nil)
	r = withOrg(r)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
