package configregistry

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/analytiqhub/docrouter/internal/httpserver"
)

// PromptRequest is the JSON body for creating or updating a prompt.
type PromptRequest struct {
	Name          string   `json:"name" validate:"required,min=1"`
	Content       string   `json:"content" validate:"required"`
	Model         string   `json:"model" validate:"required"`
	TagIDs        []string `json:"tag_ids"`
	SchemaID      *string  `json:"schema_id"`
	SchemaVersion *int     `json:"schema_version" validate:"omitempty,min=1"`
}

// PromptResponse is the JSON representation of a prompt revision.
type PromptResponse struct {
	PromptRevID   string   `json:"prompt_revid"`
	PromptID      string   `json:"prompt_id"`
	PromptVersion int      `json:"prompt_version"`
	Name          string   `json:"name"`
	Content       string   `json:"content"`
	Model         string   `json:"model"`
	TagIDs        []string `json:"tag_ids"`
	SchemaID      *string  `json:"schema_id,omitempty"`
	SchemaVersion *int     `json:"schema_version,omitempty"`
	CreatedAt     string   `json:"created_at"`
	CreatedBy     string   `json:"created_by"`
}

func promptResponse(r PromptRevision) PromptResponse {
	return PromptResponse{
		PromptRevID:   r.PromptRevID,
		PromptID:      r.PromptID,
		PromptVersion: r.PromptVersion,
		Name:          r.Name,
		Content:       r.Content,
		Model:         r.Model,
		TagIDs:        r.TagIDs,
		SchemaID:      r.SchemaID,
		SchemaVersion: r.SchemaVersion,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
		CreatedBy:     r.CreatedBy,
	}
}

func (h *Handler) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	orgID_, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	var req PromptRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	rev, err := h.prompts.Create(r.Context(), orgID_, req.Name, req.Content, req.Model, req.TagIDs, req.SchemaID, req.SchemaVersion, callerID(r))
	if err != nil {
		respondStoreErr(w, h.logger, "creating prompt", err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, promptResponse(rev))
}

func (h *Handler) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	promptID := chi.URLParam(r, "prompt_id")
	rev, err := h.prompts.GetLatest(r.Context(), promptID)
	if err != nil {
		respondStoreErr(w, h.logger, "getting prompt", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, promptResponse(rev))
}

func (h *Handler) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	promptID := chi.URLParam(r, "prompt_id")

	var req PromptRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	rev, err := h.prompts.Update(r.Context(), promptID, req.Name, req.Content, req.Model, req.TagIDs, req.SchemaID, req.SchemaVersion, callerID(r))
	if err != nil {
		respondStoreErr(w, h.logger, "updating prompt", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, promptResponse(rev))
}

func (h *Handler) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	promptID := chi.URLParam(r, "prompt_id")
	if err := h.prompts.Delete(r.Context(), promptID); err != nil {
		respondStoreErr(w, h.logger, "deleting prompt", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"message": "prompt deleted"})
}

// PromptListResponse is the envelope for GET /prompts.
type PromptListResponse struct {
	Prompts    []PromptResponse `json:"prompts"`
	TotalCount int              `json:"total_count"`
	Skip       int              `json:"skip"`
}

func (h *Handler) handleListPrompts(w http.ResponseWriter, r *http.Request) {
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

	var items []PromptRevision
	var total int
	if documentID := r.URL.Query().Get("document_id"); documentID != "" {
		if h.documentTags == nil {
			httpserver.RespondError(w, http.StatusNotImplemented, "not_implemented", "document-scoped prompt listing is unavailable")
			return
		}
		docTagIDs, err := h.documentTags(r.Context(), orgID_, documentID)
		if err != nil {
			respondStoreErr(w, h.logger, "resolving document tags", err)
			return
		}
		items, err = h.prompts.ListForDocument(r.Context(), orgID_, docTagIDs)
		if err != nil {
			respondStoreErr(w, h.logger, "listing prompts for document", err)
			return
		}
		total = len(items)
	} else {
		var err error
		items, total, err = h.prompts.List(r.Context(), orgID_, nameSearch, tagIDs, params.Limit, params.Skip)
		if err != nil {
			respondStoreErr(w, h.logger, "listing prompts", err)
			return
		}
	}

	out := make([]PromptResponse, 0, len(items))
	for _, it := range items {
		out = append(out, promptResponse(it))
	}
	httpserver.Respond(w, http.StatusOK, PromptListResponse{Prompts: out, TotalCount: total, Skip: params.Skip})
}
