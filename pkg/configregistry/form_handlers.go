package configregistry

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/analytiqhub/docrouter/internal/httpserver"
)

// FormRequest is the JSON body for creating or updating a form.
type FormRequest struct {
	Name           string             `json:"name" validate:"required,min=1"`
	ResponseFormat FormResponseFormat `json:"response_format" validate:"required"`
	TagIDs         []string           `json:"tag_ids"`
}

// FormResponse is the JSON representation of a form revision.
type FormResponse struct {
	FormRevID      string             `json:"form_revid"`
	FormID         string             `json:"form_id"`
	FormVersion    int                `json:"form_version"`
	Name           string             `json:"name"`
	ResponseFormat FormResponseFormat `json:"response_format"`
	TagIDs         []string           `json:"tag_ids"`
	CreatedAt      string             `json:"created_at"`
	CreatedBy      string             `json:"created_by"`
}

func formResponse(r FormRevision) FormResponse {
	return FormResponse{
		FormRevID:      r.FormRevID,
		FormID:         r.FormID,
		FormVersion:    r.FormVersion,
		Name:           r.Name,
		ResponseFormat: r.ResponseFormat,
		TagIDs:         r.TagIDs,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
		CreatedBy:      r.CreatedBy,
	}
}

func (h *Handler) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	orgID_, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	var req FormRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	rev, err := h.forms.Create(r.Context(), orgID_, req.Name, req.ResponseFormat, req.TagIDs, callerID(r))
	if err != nil {
		respondStoreErr(w, h.logger, "creating form", err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, formResponse(rev))
}

func (h *Handler) handleGetForm(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "form_id")
	rev, err := h.forms.GetLatest(r.Context(), formID)
	if err != nil {
		respondStoreErr(w, h.logger, "getting form", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, formResponse(rev))
}

func (h *Handler) handleUpdateForm(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "form_id")

	var req FormRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	rev, err := h.forms.Update(r.Context(), formID, req.Name, req.ResponseFormat, req.TagIDs, callerID(r))
	if err != nil {
		respondStoreErr(w, h.logger, "updating form", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, formResponse(rev))
}

func (h *Handler) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "form_id")
	if err := h.forms.Delete(r.Context(), formID); err != nil {
		respondStoreErr(w, h.logger, "deleting form", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"message": "form deleted"})
}

// FormListResponse is the envelope for GET /forms.
type FormListResponse struct {
	Forms      []FormResponse `json:"forms"`
	TotalCount int            `json:"total_count"`
	Skip       int            `json:"skip"`
}

func (h *Handler) handleListForms(w http.ResponseWriter, r *http.Request) {
	orgID_, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	params, err := httpserver.ParseSkipLimitParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	nameSearch := r.URL.Query().Get("name_search")
	tagIDs := r.URL.Query()["tag_ids"]

	items, total, err := h.forms.List(r.Context(), orgID_, nameSearch, tagIDs, params.Limit, params.Skip)
	if err != nil {
		respondStoreErr(w, h.logger, "listing forms", err)
		return
	}

	out := make([]FormResponse, 0, len(items))
	for _, it := range items {
		out = append(out, formResponse(it))
	}
	httpserver.Respond(w, http.StatusOK, FormListResponse{Forms: out, TotalCount: total, Skip: params.Skip})
}
