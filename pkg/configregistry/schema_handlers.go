package configregistry

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/analytiqhub/docrouter/internal/httpserver"
)

// SchemaRequest is the JSON body for creating or updating a schema.
type SchemaRequest struct {
	Name           string          `json:"name" validate:"required,min=1"`
	ResponseFormat json.RawMessage `json:"response_format" validate:"required"`
}

// SchemaResponse is the JSON representation of a schema revision.
type SchemaResponse struct {
	SchemaRevID    string          `json:"schema_revid"`
	SchemaID       string          `json:"schema_id"`
	SchemaVersion  int             `json:"schema_version"`
	Name           string          `json:"name"`
	ResponseFormat json.RawMessage `json:"response_format"`
	CreatedAt      string          `json:"created_at"`
	CreatedBy      string          `json:"created_by"`
}

func schemaResponse(r SchemaRevision) SchemaResponse {
	return SchemaResponse{
		SchemaRevID:    r.SchemaRevID,
		SchemaID:       r.SchemaID,
		SchemaVersion:  r.SchemaVersion,
		Name:           r.Name,
		ResponseFormat: r.ResponseFormat,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
		CreatedBy:      r.CreatedBy,
	}
}

func (h *Handler) handleCreateSchema(w http.ResponseWriter, r *http.Request) {
	org, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	var req SchemaRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if err := validateResponseFormat(req.ResponseFormat); err != nil {
		httpserver.RespondValidationError(w, []httpserver.ValidationError{{Field: "response_format", Message: err.Error()}})
		return
	}

	rev, err := h.schemas.Create(r.Context(), org, req.Name, req.ResponseFormat, callerID(r))
	if err != nil {
		respondStoreErr(w, h.logger, "creating schema", err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, schemaResponse(rev))
}

func (h *Handler) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	schemaID := chi.URLParam(r, "schema_id")
	rev, err := h.schemas.GetLatest(r.Context(), schemaID)
	if err != nil {
		respondStoreErr(w, h.logger, "getting schema", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, schemaResponse(rev))
}

func (h *Handler) handleUpdateSchema(w http.ResponseWriter, r *http.Request) {
	schemaID := chi.URLParam(r, "schema_id")

	var req SchemaRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if err := validateResponseFormat(req.ResponseFormat); err != nil {
		httpserver.RespondValidationError(w, []httpserver.ValidationError{{Field: "response_format", Message: err.Error()}})
		return
	}

	rev, err := h.schemas.Update(r.Context(), schemaID, req.Name, req.ResponseFormat, callerID(r))
	if err != nil {
		respondStoreErr(w, h.logger, "updating schema", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, schemaResponse(rev))
}

func (h *Handler) handleDeleteSchema(w http.ResponseWriter, r *http.Request) {
	schemaID := chi.URLParam(r, "schema_id")
	if err := h.schemas.Delete(r.Context(), schemaID); err != nil {
		respondStoreErr(w, h.logger, "deleting schema", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"message": "schema deleted"})
}

// SchemaListResponse is the envelope for GET /schemas.
type SchemaListResponse struct {
	Schemas    []SchemaResponse `json:"schemas"`
	TotalCount int              `json:"total_count"`
	Skip       int              `json:"skip"`
}

func (h *Handler) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	org, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	params, err := httpserver.ParseSkipLimitParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	items, total, err := h.schemas.List(r.Context(), org, r.URL.Query().Get("name_search"), params.Limit, params.Skip)
	if err != nil {
		respondStoreErr(w, h.logger, "listing schemas", err)
		return
	}

	out := make([]SchemaResponse, 0, len(items))
	for _, it := range items {
		out = append(out, schemaResponse(it))
	}
	httpserver.Respond(w, http.StatusOK, SchemaListResponse{Schemas: out, TotalCount: total, Skip: params.Skip})
}
