package document

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/analytiqhub/docrouter/internal/apperr"
	"github.com/analytiqhub/docrouter/internal/auth"
	"github.com/analytiqhub/docrouter/internal/httpserver"
	"github.com/analytiqhub/docrouter/internal/idgen"
	"github.com/analytiqhub/docrouter/internal/org"
	"github.com/analytiqhub/docrouter/internal/storage"
	"github.com/analytiqhub/docrouter/pkg/blobstore"
	"github.com/analytiqhub/docrouter/pkg/configregistry"
	"github.com/analytiqhub/docrouter/pkg/queue"
)

// Handler provides HTTP handlers for the document API.
type Handler struct {
	logger *slog.Logger
	store  *Store
	blobs  blobstore.Store
	jobs   *queue.Store
	tags   *configregistry.TagStore
}

// NewHandler creates a document Handler.
func NewHandler(logger *slog.Logger, dbtx storage.DBTX, blobs blobstore.Store, jobs *queue.Store, tags *configregistry.TagStore) *Handler {
	return &Handler{
		logger: logger,
		store:  NewStore(dbtx),
		blobs:  blobs,
		jobs:   jobs,
		tags:   tags,
	}
}

// DocumentTags resolves the tag_ids of a document, for
// configregistry.Handler's document-scoped prompt listing. Returns nil,
// nil for a document with no tags, matching ListForDocument's contract.
func (h *Handler) DocumentTags(ctx context.Context, organizationID, documentID string) ([]string, error) {
	doc, err := h.store.Get(ctx, organizationID, documentID)
	if err != nil {
		return nil, err
	}
	return doc.TagIDs, nil
}

// Routes returns a chi.Router with all document routes mounted, for use
// under an org-scoped prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleUpload)
	r.Get("/", h.handleList)
	r.Route("/{document_id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Get("/ocr/text", h.handleOCRText)
		r.Get("/ocr/blocks", h.handleOCRBlocks)
		r.Get("/ocr/metadata", h.handleOCRMetadata)
	})
	return r
}

func callerID(r *http.Request) string {
	if id := auth.FromContext(r.Context()); id != nil {
		return id.UserID
	}
	return ""
}

func orgID(r *http.Request) (string, error) {
	return org.IDFromContext(r.Context())
}

func respondStoreErr(w http.ResponseWriter, logger *slog.Logger, action string, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		httpserver.RespondAppError(w, apperr.New(apperr.NotFound, "document not found"))
		return
	}
	if ae, ok := apperr.As(err); ok {
		httpserver.RespondAppError(w, ae)
		return
	}
	logger.Error(action, "error", err)
	httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, action, err))
}

// uploadItem is one element of the upload request, which is a bare JSON
// array at the top level (not wrapped in an envelope object).
type uploadItem struct {
	Name     string            `json:"name" validate:"required"`
	Content  string            `json:"content" validate:"required"`
	Metadata map[string]string `json:"metadata"`
	TagIDs   []string          `json:"tag_ids"`
}

type uploadResult struct {
	DocumentID string   `json:"document_id"`
	TagIDs     []string `json:"tag_ids"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	orgID_, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	var items []uploadItem
	if err := httpserver.Decode(r, &items); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if len(items) == 0 {
		httpserver.RespondValidationError(w, []httpserver.ValidationError{{Field: "", Message: "at least one document is required"}})
		return
	}
	var fieldErrs []httpserver.ValidationError
	for _, item := range items {
		fieldErrs = append(fieldErrs, httpserver.Validate(&item)...)
	}
	if len(fieldErrs) > 0 {
		httpserver.RespondValidationError(w, fieldErrs)
		return
	}

	if err := h.validateTagMembership(r.Context(), orgID_, items); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	uploader := callerID(r)
	results := make([]uploadResult, 0, len(items))
	for _, item := range items {
		data, err := decodeDataURL(item.Content)
		if err != nil {
			httpserver.RespondAppError(w, apperr.Wrap(apperr.Validation, fmt.Sprintf("decoding content for %q", item.Name), err))
			return
		}

		ext := strings.TrimPrefix(filepath.Ext(item.Name), ".")
		id := idgen.New()
		blobName := blobstore.Original(id, ext)

		if err := h.blobs.Put(r.Context(), blobName, bytes.NewReader(data)); err != nil {
			h.logger.Error("storing uploaded blob", "error", err, "document_id", id)
			httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, "storing document content", err))
			return
		}

		doc, err := h.store.Create(r.Context(), CreateParams{
			ID:             id,
			OrganizationID: orgID_,
			UserFileName:   item.Name,
			BlobName:       blobName,
			UploadedBy:     uploader,
			TagIDs:         item.TagIDs,
			Metadata:       item.Metadata,
		})
		if err != nil {
			respondStoreErr(w, h.logger, "creating document", err)
			return
		}

		payload, err := json.Marshal(map[string]string{"document_id": doc.ID})
		if err != nil {
			httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, "encoding OCR job payload", err))
			return
		}
		if _, err := h.jobs.Enqueue(r.Context(), queue.QueueOCR, payload); err != nil {
			h.logger.Error("enqueueing OCR job", "error", err, "document_id", doc.ID)
			httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, "enqueueing OCR job", err))
			return
		}

		results = append(results, uploadResult{DocumentID: doc.ID, TagIDs: doc.TagIDs})
	}

	httpserver.Respond(w, http.StatusCreated, results)
}

func (h *Handler) validateTagMembership(ctx context.Context, organizationID string, items []uploadItem) error {
	existing := map[string]struct{}{}
	for _, item := range items {
		for _, tagID := range item.TagIDs {
			if _, ok := existing[tagID]; ok {
				continue
			}
			if _, err := h.tags.Get(ctx, tagID); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return apperr.New(apperr.Validation, fmt.Sprintf("unknown tag_id %q", tagID))
				}
				return apperr.Wrap(apperr.Internal, "validating tag membership", err)
			}
			existing[tagID] = struct{}{}
		}
	}
	return nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
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

	filters := ListFilters{
		TagIDs:     r.URL.Query()["tag_ids"],
		NameSearch: r.URL.Query().Get("name_search"),
	}
	if ms := r.URL.Query().Get("metadata_search"); ms != "" {
		kv := strings.SplitN(ms, ":", 2)
		if len(kv) == 2 {
			filters.MetadataSearch = map[string]string{kv[0]: kv[1]}
		}
	}

	items, total, err := h.store.List(r.Context(), orgID_, filters, params.Limit, params.Skip)
	if err != nil {
		respondStoreErr(w, h.logger, "listing documents", err)
		return
	}

	out := make([]documentSummary, 0, len(items))
	for _, d := range items {
		out = append(out, summaryFromDocument(d))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"documents":   out,
		"total_count": total,
		"skip":        params.Skip,
	})
}

type documentSummary struct {
	ID           string            `json:"id"`
	UserFileName string            `json:"user_file_name"`
	UploadDate   string            `json:"upload_date"`
	UploadedBy   string            `json:"uploaded_by"`
	State        State             `json:"state"`
	TagIDs       []string          `json:"tag_ids"`
	Metadata     map[string]string `json:"metadata"`
	NPages       int               `json:"n_pages"`
	OCRDate      *string           `json:"ocr_date,omitempty"`
}

func summaryFromDocument(d Document) documentSummary {
	s := documentSummary{
		ID:           d.ID,
		UserFileName: d.UserFileName,
		UploadDate:   d.UploadDate.Format(time.RFC3339),
		UploadedBy:   d.UploadedBy,
		State:        d.State,
		TagIDs:       d.TagIDs,
		Metadata:     d.Metadata,
		NPages:       d.NPages,
	}
	if d.OCRDate != nil {
		formatted := d.OCRDate.Format(time.RFC3339)
		s.OCRDate = &formatted
	}
	return s
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	orgID_, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	documentID := chi.URLParam(r, "document_id")

	doc, err := h.store.Get(r.Context(), orgID_, documentID)
	if err != nil {
		respondStoreErr(w, h.logger, "getting document", err)
		return
	}

	rc, err := h.blobs.Get(r.Context(), doc.BlobName)
	if err != nil {
		h.logger.Error("reading document blob", "error", err, "document_id", documentID)
		httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, "reading document content", err))
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, "reading document content", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"metadata": summaryFromDocument(doc),
		"content":  base64.StdEncoding.EncodeToString(data),
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	orgID_, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	documentID := chi.URLParam(r, "document_id")

	var req struct {
		TagIDs       []string          `json:"tag_ids"`
		Metadata     map[string]string `json:"metadata"`
		UserFileName *string           `json:"user_file_name"`
	}
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if req.TagIDs != nil {
		if err := h.validateTagMembership(r.Context(), orgID_, []uploadItem{{TagIDs: req.TagIDs}}); err != nil {
			httpserver.RespondAppError(w, err)
			return
		}
	}

	err = h.store.Update(r.Context(), orgID_, documentID, UpdateParams{
		UserFileName: req.UserFileName,
		TagIDs:       req.TagIDs,
		Metadata:     req.Metadata,
	})
	if err != nil {
		respondStoreErr(w, h.logger, "updating document", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"message": "document updated"})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	orgID_, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	documentID := chi.URLParam(r, "document_id")

	doc, err := h.store.Get(r.Context(), orgID_, documentID)
	if err != nil {
		respondStoreErr(w, h.logger, "getting document", err)
		return
	}

	h.deleteArtifacts(r.Context(), doc)

	if err := h.store.Delete(r.Context(), orgID_, documentID); err != nil {
		respondStoreErr(w, h.logger, "deleting document", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"message": "document deleted"})
}

// deleteArtifacts removes every blob a document may have produced. Missing
// blobs are not an error: a document that failed OCR never produced page
// images or OCR text.
func (h *Handler) deleteArtifacts(ctx context.Context, doc Document) {
	keys := []string{doc.BlobName, blobstore.OCRBlocks(doc.ID), blobstore.OCRText(doc.ID)}
	for n := 1; n <= doc.NPages; n++ {
		keys = append(keys, blobstore.Page(doc.ID, n), blobstore.OCRTextPage(doc.ID, n))
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := h.blobs.Delete(ctx, key); err != nil {
			h.logger.Error("deleting blob", "error", err, "key", key)
		}
	}
}

func (h *Handler) handleOCRText(w http.ResponseWriter, r *http.Request) {
	orgID_, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	documentID := chi.URLParam(r, "document_id")

	key := blobstore.OCRText(documentID)
	if pageParam := r.URL.Query().Get("page_num"); pageParam != "" {
		n, err := strconv.Atoi(pageParam)
		if err != nil || n < 1 {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "page_num must be a positive integer")
			return
		}
		key = blobstore.OCRTextPage(documentID, n)
	}

	if _, err := h.store.Get(r.Context(), orgID_, documentID); err != nil {
		respondStoreErr(w, h.logger, "getting document", err)
		return
	}

	rc, err := h.blobs.Get(r.Context(), key)
	if err != nil {
		respondStoreErr(w, h.logger, "reading OCR text", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Error("writing OCR text response", "error", err, "document_id", documentID)
	}
}

func (h *Handler) handleOCRBlocks(w http.ResponseWriter, r *http.Request) {
	orgID_, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	documentID := chi.URLParam(r, "document_id")

	if _, err := h.store.Get(r.Context(), orgID_, documentID); err != nil {
		respondStoreErr(w, h.logger, "getting document", err)
		return
	}

	rc, err := h.blobs.Get(r.Context(), blobstore.OCRBlocks(documentID))
	if err != nil {
		respondStoreErr(w, h.logger, "reading OCR blocks", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/json")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Error("writing OCR blocks response", "error", err, "document_id", documentID)
	}
}

func (h *Handler) handleOCRMetadata(w http.ResponseWriter, r *http.Request) {
	orgID_, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	documentID := chi.URLParam(r, "document_id")

	doc, err := h.store.Get(r.Context(), orgID_, documentID)
	if err != nil {
		respondStoreErr(w, h.logger, "getting document", err)
		return
	}

	var ocrDate *string
	if doc.OCRDate != nil {
		formatted := doc.OCRDate.Format(time.RFC3339)
		ocrDate = &formatted
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"n_pages":  doc.NPages,
		"ocr_date": ocrDate,
	})
}
