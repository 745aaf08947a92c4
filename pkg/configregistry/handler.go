package configregistry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/analytiqhub/docrouter/internal/apperr"
	"github.com/analytiqhub/docrouter/internal/auth"
	"github.com/analytiqhub/docrouter/internal/httpserver"
	"github.com/analytiqhub/docrouter/internal/org"
	"github.com/analytiqhub/docrouter/internal/storage"
)

// Handler provides HTTP handlers for schemas, prompts, forms, and tags.
type Handler struct {
	logger       *slog.Logger
	schemas      *SchemaStore
	prompts      *PromptStore
	forms        *FormStore
	tags         *TagStore
	documentTags func(ctx context.Context, organizationID, documentID string) ([]string, error)
}

// NewHandler creates a configregistry Handler backed by dbtx.
func NewHandler(logger *slog.Logger, dbtx storage.DBTX) *Handler {
	schemas := NewSchemaStore(dbtx)
	return &Handler{
		logger:  logger,
		schemas: schemas,
		prompts: NewPromptStore(dbtx, schemas),
		forms:   NewFormStore(dbtx),
		tags:    NewTagStore(dbtx),
	}
}

// SetDocumentTagsResolver wires the lookup used by GET /prompts?document_id=...
// to restrict results to prompts whose tags intersect the document's tags.
// pkg/document depends on this package, not the reverse, so the resolver is
// supplied by the caller that owns both (the app wiring layer) rather than
// imported directly.
func (h *Handler) SetDocumentTagsResolver(fn func(ctx context.Context, organizationID, documentID string) ([]string, error)) {
	h.documentTags = fn
}

// Routes returns a chi.Router with schema, prompt, form, and tag routes
// mounted, for use under an org-scoped prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/schemas", func(r chi.Router) {
		r.Post("/", h.handleCreateSchema)
		r.Get("/", h.handleListSchemas)
		r.Route("/{schema_id}", func(r chi.Router) {
			r.Get("/", h.handleGetSchema)
			r.Put("/", h.handleUpdateSchema)
			r.Delete("/", h.handleDeleteSchema)
		})
	})

	r.Route("/prompts", func(r chi.Router) {
		r.Post("/", h.handleCreatePrompt)
		r.Get("/", h.handleListPrompts)
		r.Route("/{prompt_id}", func(r chi.Router) {
			r.Get("/", h.handleGetPrompt)
			r.Put("/", h.handleUpdatePrompt)
			r.Delete("/", h.handleDeletePrompt)
		})
	})

	r.Route("/forms", func(r chi.Router) {
		r.Post("/", h.handleCreateForm)
		r.Get("/", h.handleListForms)
		r.Route("/{form_id}", func(r chi.Router) {
			r.Get("/", h.handleGetForm)
			r.Put("/", h.handleUpdateForm)
			r.Delete("/", h.handleDeleteForm)
		})
	})

	r.Route("/tags", func(r chi.Router) {
		r.Post("/", h.handleCreateTag)
		r.Get("/", h.handleListTags)
		r.Route("/{tag_id}", func(r chi.Router) {
			r.Put("/", h.handleUpdateTag)
			r.Delete("/", h.handleDeleteTag)
		})
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
		httpserver.RespondAppError(w, apperr.New(apperr.NotFound, "not found"))
		return
	}
	if ae, ok := apperr.As(err); ok {
		httpserver.RespondAppError(w, ae)
		return
	}
	logger.Error(action, "error", err)
	httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, action, err))
}
