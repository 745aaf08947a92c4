// Package llmapi implements the client-facing surface of the LLM
// extraction pipeline: triggering/retriggering a run, reading and editing
// its versioned result, downloading the full result set for a document,
// and an admin-only ad hoc chat endpoint against the same provider
// registry the worker uses.
package llmapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/analytiqhub/docrouter/internal/apperr"
	"github.com/analytiqhub/docrouter/internal/auth"
	"github.com/analytiqhub/docrouter/internal/httpserver"
	"github.com/analytiqhub/docrouter/internal/org"
	"github.com/analytiqhub/docrouter/internal/storage"
	"github.com/analytiqhub/docrouter/pkg/configregistry"
	"github.com/analytiqhub/docrouter/pkg/document"
	"github.com/analytiqhub/docrouter/pkg/llmprovider"
	"github.com/analytiqhub/docrouter/pkg/llmresult"
	"github.com/analytiqhub/docrouter/pkg/queue"
)

// Handler provides HTTP handlers for the LLM API.
type Handler struct {
	logger     *slog.Logger
	docs       *document.Store
	results    *llmresult.Store
	prompts    *configregistry.PromptStore
	jobs       *queue.Store
	providers  *llmprovider.Registry
	runTimeout time.Duration
}

// NewHandler creates an llmapi Handler. runTimeout bounds how long Run
// waits for the worker to produce a result before returning 202 instead
// (config DOCROUTER_LLM_RUN_TIMEOUT, default 5m).
func NewHandler(logger *slog.Logger, dbtx storage.DBTX, jobs *queue.Store, prompts *configregistry.PromptStore, providers *llmprovider.Registry, runTimeout time.Duration) *Handler {
	return &Handler{
		logger:     logger,
		docs:       document.NewStore(dbtx),
		results:    llmresult.NewStore(dbtx),
		prompts:    prompts,
		jobs:       jobs,
		providers:  providers,
		runTimeout: runTimeout,
	}
}

// Routes returns a chi.Router with all LLM API routes mounted, for use
// under an org-scoped prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/chat", h.handleChat)
	r.Route("/{document_id}", func(r chi.Router) {
		r.Post("/run", h.handleRun)
		r.Get("/result", h.handleGetResult)
		r.Put("/result", h.handleUpdateResult)
		r.Delete("/result", h.handleDeleteResult)
		r.Get("/download", h.handleDownload)
	})
	return r
}

func orgID(r *http.Request) (string, error) {
	return org.IDFromContext(r.Context())
}

func promptRevIDParam(r *http.Request) string {
	if v := r.URL.Query().Get("prompt_revid"); v != "" {
		return v
	}
	return llmresult.DefaultPromptRevID
}

func respondStoreErr(w http.ResponseWriter, logger *slog.Logger, action string, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		httpserver.RespondAppError(w, apperr.New(apperr.NotFound, "result not found"))
		return
	}
	if ae, ok := apperr.As(err); ok {
		httpserver.RespondAppError(w, ae)
		return
	}
	logger.Error(action, "error", err)
	httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, action, err))
}

type resultView struct {
	DocumentID       string          `json:"document_id"`
	PromptRevID      string          `json:"prompt_revid"`
	PromptID         string          `json:"prompt_id"`
	PromptVersion    int             `json:"prompt_version"`
	LLMResult        json.RawMessage `json:"llm_result"`
	UpdatedLLMResult json.RawMessage `json:"updated_llm_result"`
	IsEdited         bool            `json:"is_edited"`
	IsVerified       bool            `json:"is_verified"`
	CreatedAt        string          `json:"created_at"`
	UpdatedAt        string          `json:"updated_at"`
}

func resultResponse(r llmresult.Result) resultView {
	return resultView{
		DocumentID:       r.DocumentID,
		PromptRevID:      r.PromptRevID,
		PromptID:         r.PromptID,
		PromptVersion:    r.PromptVersion,
		LLMResult:        r.LLMResult,
		UpdatedLLMResult: r.UpdatedLLMResult,
		IsEdited:         r.IsEdited,
		IsVerified:       r.IsVerified,
		CreatedAt:        r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        r.UpdatedAt.Format(time.RFC3339),
	}
}

// handleRun triggers (or, with force=true, re-triggers) extraction for a
// document and prompt revision, waiting up to runTimeout for the worker
// to produce a result before returning 202 for the caller to poll
// GetResult instead.
func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	orgID_, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	documentID := chi.URLParam(r, "document_id")
	promptRevID := promptRevIDParam(r)
	force := r.URL.Query().Get("force") == "true"

	doc, err := h.docs.Get(r.Context(), orgID_, documentID)
	if err != nil {
		respondStoreErr(w, h.logger, "getting document", err)
		return
	}

	if !force {
		if res, err := h.results.Get(r.Context(), doc.ID, promptRevID); err == nil {
			httpserver.Respond(w, http.StatusOK, resultResponse(res))
			return
		} else if !errors.Is(err, pgx.ErrNoRows) {
			respondStoreErr(w, h.logger, "checking existing result", err)
			return
		}
	}

	payload, err := json.Marshal(map[string]string{"document_id": doc.ID, "prompt_revid": promptRevID})
	if err != nil {
		httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, "encoding LLM job payload", err))
		return
	}
	if _, err := h.jobs.Enqueue(r.Context(), queue.QueueLLM, payload); err != nil {
		h.logger.Error("enqueueing LLM job", "error", err, "document_id", doc.ID)
		httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, "enqueueing LLM job", err))
		return
	}

	res, err := h.waitForResult(r.Context(), doc.ID, promptRevID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			httpserver.Respond(w, http.StatusAccepted, map[string]string{"message": "extraction in progress"})
			return
		}
		respondStoreErr(w, h.logger, "waiting for LLM result", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, resultResponse(res))
}

// waitForResult polls for a result row at a fixed interval up to
// h.runTimeout, making Run synchronous-but-bounded rather than either
// blocking indefinitely or returning before the worker has had any
// chance to complete a fast extraction.
func (h *Handler) waitForResult(ctx context.Context, documentID, promptRevID string) (llmresult.Result, error) {
	deadline := time.Now().Add(h.runTimeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		res, err := h.results.Get(ctx, documentID, promptRevID)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return llmresult.Result{}, err
		}
		if time.Now().After(deadline) {
			return llmresult.Result{}, context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return llmresult.Result{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// handleGetResult returns the exact (document, prompt_revid) result, or
// with fallback=true, falls back to the document's most recently updated
// result when the exact revision has no row yet.
func (h *Handler) handleGetResult(w http.ResponseWriter, r *http.Request) {
	orgID_, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	documentID := chi.URLParam(r, "document_id")
	promptRevID := promptRevIDParam(r)
	fallback := r.URL.Query().Get("fallback") == "true"

	if _, err := h.docs.Get(r.Context(), orgID_, documentID); err != nil {
		respondStoreErr(w, h.logger, "getting document", err)
		return
	}

	res, err := h.results.Get(r.Context(), documentID, promptRevID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) && fallback {
			res, err = h.results.GetLatestForDocument(r.Context(), documentID)
		}
		if err != nil {
			respondStoreErr(w, h.logger, "getting LLM result", err)
			return
		}
	}
	httpserver.Respond(w, http.StatusOK, resultResponse(res))
}

type updateResultRequest struct {
	UpdatedLLMResult json.RawMessage `json:"updated_llm_result" validate:"required"`
	IsVerified       bool            `json:"is_verified"`
}

func (h *Handler) handleUpdateResult(w http.ResponseWriter, r *http.Request) {
	orgID_, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	documentID := chi.URLParam(r, "document_id")
	promptRevID := promptRevIDParam(r)

	var req updateResultRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if _, err := h.docs.Get(r.Context(), orgID_, documentID); err != nil {
		respondStoreErr(w, h.logger, "getting document", err)
		return
	}

	res, err := h.results.UpdateEdits(r.Context(), documentID, promptRevID, req.UpdatedLLMResult, req.IsVerified)
	if err != nil {
		respondStoreErr(w, h.logger, "updating LLM result", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, resultResponse(res))
}

func (h *Handler) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	orgID_, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	documentID := chi.URLParam(r, "document_id")
	promptRevID := promptRevIDParam(r)

	if _, err := h.docs.Get(r.Context(), orgID_, documentID); err != nil {
		respondStoreErr(w, h.logger, "getting document", err)
		return
	}

	if err := h.results.Delete(r.Context(), documentID, promptRevID); err != nil {
		respondStoreErr(w, h.logger, "deleting LLM result", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"message": "result deleted"})
}

type downloadItem struct {
	PromptRevID      string          `json:"prompt_revid"`
	PromptID         string          `json:"prompt_id"`
	PromptName       string          `json:"prompt_name"`
	PromptVersion    int             `json:"prompt_version"`
	LLMResult        json.RawMessage `json:"llm_result"`
	UpdatedLLMResult json.RawMessage `json:"updated_llm_result"`
	IsEdited         bool            `json:"is_edited"`
	IsVerified       bool            `json:"is_verified"`
	CreatedAt        string          `json:"created_at"`
	UpdatedAt        string          `json:"updated_at"`
}

// handleDownload returns every result row for a document with prompt
// metadata (name) inlined, since a client downloading the full bundle
// should not have to look each prompt revision up separately.
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	orgID_, err := orgID(r)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	documentID := chi.URLParam(r, "document_id")

	if _, err := h.docs.Get(r.Context(), orgID_, documentID); err != nil {
		respondStoreErr(w, h.logger, "getting document", err)
		return
	}

	results, err := h.results.ListForDocument(r.Context(), documentID)
	if err != nil {
		respondStoreErr(w, h.logger, "listing LLM results", err)
		return
	}

	items := make([]downloadItem, 0, len(results))
	for _, res := range results {
		name := "Default Prompt"
		if res.PromptRevID != llmresult.DefaultPromptRevID {
			if rev, err := h.prompts.GetRevision(r.Context(), res.PromptRevID); err == nil {
				name = rev.Name
			}
		}
		items = append(items, downloadItem{
			PromptRevID:      res.PromptRevID,
			PromptID:         res.PromptID,
			PromptName:       name,
			PromptVersion:    res.PromptVersion,
			LLMResult:        res.LLMResult,
			UpdatedLLMResult: res.UpdatedLLMResult,
			IsEdited:         res.IsEdited,
			IsVerified:       res.IsVerified,
			CreatedAt:        res.CreatedAt.Format(time.RFC3339),
			UpdatedAt:        res.UpdatedAt.Format(time.RFC3339),
		})
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"document_id": documentID,
		"results":     items,
	})
}

type chatRequest struct {
	Model       string                    `json:"model" validate:"required"`
	Messages    []llmprovider.ChatMessage `json:"messages" validate:"required"`
	Temperature *float64                  `json:"temperature"`
	MaxTokens   *int                      `json:"max_tokens"`
	TopP        *float64                  `json:"top_p"`
	Stream      bool                      `json:"stream"`
}

// handleChat implements run_llm_chat: an admin-only synchronous (or
// streaming) pass-through to the resolved provider, validated against the
// registry's enabled-model union.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if org.RoleFromContext(r.Context()) != auth.RoleAdmin {
		httpserver.RespondAppError(w, apperr.New(apperr.Authorization, "admin role required"))
		return
	}

	var req chatRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if !isEnabledModel(h.providers, req.Model) {
		httpserver.RespondAppError(w, apperr.New(apperr.Validation, fmt.Sprintf("model %q is not enabled", req.Model)))
		return
	}

	provider, err := h.providers.GetForModel(req.Model)
	if err != nil {
		httpserver.RespondAppError(w, apperr.Wrap(apperr.ProviderPermanent, "resolving model provider", err))
		return
	}

	chatReq := llmprovider.ChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	}

	if !req.Stream {
		resp, err := provider.ChatCompletion(r.Context(), chatReq)
		if err != nil {
			httpserver.RespondError(w, http.StatusInternalServerError, "provider_error", err.Error())
			return
		}
		httpserver.Respond(w, http.StatusOK, resp)
		return
	}

	h.streamChat(w, r, provider, chatReq)
}

func isEnabledModel(providers *llmprovider.Registry, model string) bool {
	for _, m := range providers.EnabledModels() {
		if m == model {
			return true
		}
	}
	return false
}

// streamChat proxies a streaming chat completion as a sequence of
// "data: " lines, each carrying {chunk} until a final {done: true}, or an
// {error} event in-stream if the provider call itself or any chunk fails.
func (h *Handler) streamChat(w http.ResponseWriter, r *http.Request, provider llmprovider.Provider, req llmprovider.ChatRequest) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)

	chunks, err := provider.ChatCompletionStream(r.Context(), req)
	if err != nil {
		writeSSE(w, map[string]string{"error": err.Error()})
		if canFlush {
			flusher.Flush()
		}
		return
	}

	for chunk := range chunks {
		switch {
		case chunk.Err != nil:
			writeSSE(w, map[string]string{"error": chunk.Err.Error()})
		case chunk.Done:
			writeSSE(w, map[string]bool{"done": true})
		default:
			writeSSE(w, map[string]string{"chunk": chunk.Text})
		}
		if canFlush {
			flusher.Flush()
		}
		select {
		case <-r.Context().Done():
			return
		default:
		}
	}
}

func writeSSE(w http.ResponseWriter, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
