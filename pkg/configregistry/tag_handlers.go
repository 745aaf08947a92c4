package configregistry

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/analytiqhub/docrouter/internal/httpserver"
)

// TagRequest is the JSON body for creating or updating a tag.
type TagRequest struct {
	Name        string `json:"name" validate:"required,min=1"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// TagResponse is the JSON representation of a tag.
type TagResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at"`
}

func tagResponse(t Tag) TagResponse {
	return TagResponse{
		ID:          t.ID,
		Name:        t.Name,
		Color:       t.Color,
		Description: t.Description,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	orgID_, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	var req TagRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	tag, err := h.tags.Create(r.Context(), orgID_, req.Name, req.Color, req.Description, callerID(r))
	if err != nil {
		respondStoreErr(w, h.logger, "creating tag", err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, tagResponse(tag))
}

func (h *Handler) handleListTags(w http.ResponseWriter, r *http.Request) {
	orgID_, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	tags, err := h.tags.List(r.Context(), orgID_)
	if err != nil {
		respondStoreErr(w, h.logger, "listing tags", err)
		return
	}

	out := make([]TagResponse, 0, len(tags))
	for _, t := range tags {
		out = append(out, tagResponse(t))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"tags": out})
}

func (h *Handler) handleUpdateTag(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tag_id")

	var req TagRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	tag, err := h.tags.Update(r.Context(), id, req.Name, req.Color, req.Description)
	if err != nil {
		respondStoreErr(w, h.logger, "updating tag", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, tagResponse(tag))
}

func (h *Handler) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tag_id")
	if err := h.tags.Delete(r.Context(), id); err != nil {
		respondStoreErr(w, h.logger, "deleting tag", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"message": "tag deleted"})
}
