// Package llmworker drives the LLM extraction stage of the document
// pipeline: it leases jobs from the "llm" queue, resolves the tagged
// prompt-revision fanout (including the implicit default prompt), calls
// an LLM provider through pkg/llmprovider, and writes the versioned
// result. Like pkg/ocrworker, it is wired as a pkg/queue.Handler rather
// than running its own loop.
package llmworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/analytiqhub/docrouter/internal/apperr"
	"github.com/analytiqhub/docrouter/pkg/blobstore"
	"github.com/analytiqhub/docrouter/pkg/configregistry"
	"github.com/analytiqhub/docrouter/pkg/credit"
	"github.com/analytiqhub/docrouter/pkg/document"
	"github.com/analytiqhub/docrouter/pkg/llmprovider"
	"github.com/analytiqhub/docrouter/pkg/llmresult"
	"github.com/analytiqhub/docrouter/pkg/queue"
)

// defaultPromptContent is the body of the implicit default prompt: a
// schema-less, tag-less extraction every document goes through once OCR
// completes.
const defaultPromptContent = "Extract all relevant structured information from this document as JSON. There is no fixed schema; use your judgment for field names and nesting."

// jobPayload is the "llm" queue's job payload.
type jobPayload struct {
	DocumentID  string `json:"document_id"`
	PromptRevID string `json:"prompt_revid"`
}

// extraction holds the concrete prompt fields a single extraction call
// needs, whether they came from a stored PromptRevision or the implicit
// default prompt.
type extraction struct {
	PromptRevID   string
	PromptID      string
	PromptVersion int
	Content       string
	Model         string
	SchemaID      *string
	SchemaVersion *int
}

// Worker processes LLM jobs.
type Worker struct {
	docs                *document.Store
	blobs               blobstore.Store
	jobs                *queue.Store
	credit              *credit.Store
	prompts             *configregistry.PromptStore
	schemas             *configregistry.SchemaStore
	results             *llmresult.Store
	providers           *llmprovider.Registry
	pricing             *llmprovider.PricingConfig
	spuPerUSD           float64
	minEstimatedCostSPU float64
	defaultModel        string
}

// New creates an LLM Worker. minEstimatedCostSPU is the pre-flight balance
// floor checked before the token-accurate cost is known (config
// DOCROUTER_LLM_MIN_ESTIMATED_SPU); defaultModel is the model the
// implicit default prompt runs against.
func New(docs *document.Store, blobs blobstore.Store, jobs *queue.Store, creditStore *credit.Store,
	prompts *configregistry.PromptStore, schemas *configregistry.SchemaStore, results *llmresult.Store,
	providers *llmprovider.Registry, pricing *llmprovider.PricingConfig,
	spuPerUSD, minEstimatedCostSPU float64, defaultModel string) *Worker {
	return &Worker{
		docs:                docs,
		blobs:               blobs,
		jobs:                jobs,
		credit:              creditStore,
		prompts:             prompts,
		schemas:             schemas,
		results:             results,
		providers:           providers,
		pricing:             pricing,
		spuPerUSD:           spuPerUSD,
		minEstimatedCostSPU: minEstimatedCostSPU,
		defaultModel:        defaultModel,
	}
}

// Handle implements queue.Handler, driving one job through the LLM state
// machine described in the document API design.
func (w *Worker) Handle(ctx context.Context, job queue.Job) error {
	var payload jobPayload
	if err := json.Unmarshal(job.PayloadJSON, &payload); err != nil {
		return apperr.Wrap(apperr.ProviderPermanent, "decoding LLM job payload", err)
	}

	doc, err := w.docs.GetByID(ctx, payload.DocumentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", payload.DocumentID, err)
	}

	if !doc.State.AtLeast(document.StateOCRCompleted) {
		return &retryableError{
			err:   apperr.New(apperr.Conflict, "document has not completed OCR yet"),
			delay: 10 * time.Second,
		}
	}

	if payload.PromptRevID == llmresult.DefaultPromptRevID {
		return w.fanout(ctx, doc)
	}

	rev, err := w.prompts.GetRevision(ctx, payload.PromptRevID)
	if err != nil {
		return fmt.Errorf("loading prompt revision %s: %w", payload.PromptRevID, err)
	}

	return w.processExtraction(ctx, doc, job, extraction{
		PromptRevID:   rev.PromptRevID,
		PromptID:      rev.PromptID,
		PromptVersion: rev.PromptVersion,
		Content:       rev.Content,
		Model:         rev.Model,
		SchemaID:      rev.SchemaID,
		SchemaVersion: rev.SchemaVersion,
	})
}

// fanout enumerates every prompt revision tagged onto the document,
// enqueues a concrete sub-job for each, and runs the implicit default
// prompt inline before acking. The sub-jobs carry concrete prompt_revids,
// so they never re-enter fanout themselves.
func (w *Worker) fanout(ctx context.Context, doc document.Document) error {
	revisions, err := w.prompts.ListForDocument(ctx, doc.OrganizationID, doc.TagIDs)
	if err != nil {
		return fmt.Errorf("listing tagged prompts for document: %w", err)
	}

	for _, rev := range revisions {
		subPayload, err := json.Marshal(jobPayload{DocumentID: doc.ID, PromptRevID: rev.PromptRevID})
		if err != nil {
			return fmt.Errorf("encoding sub-job payload: %w", err)
		}
		if _, err := w.jobs.Enqueue(ctx, queue.QueueLLM, subPayload); err != nil {
			return fmt.Errorf("enqueueing sub-job for prompt %s: %w", rev.PromptRevID, err)
		}
	}

	return w.processExtraction(ctx, doc, queue.Job{Attempts: 1}, extraction{
		PromptRevID:   llmresult.DefaultPromptRevID,
		PromptID:      "default",
		PromptVersion: 0,
		Content:       defaultPromptContent,
		Model:         w.defaultModel,
	})
}

// processExtraction runs one concrete prompt revision (or the implicit
// default prompt) through the check_spu → call → persist → bill sequence.
func (w *Worker) processExtraction(ctx context.Context, doc document.Document, job queue.Job, x extraction) error {
	balance, err := w.credit.GetBalance(ctx, doc.OrganizationID)
	if err != nil {
		return fmt.Errorf("checking SPU balance: %w", err)
	}
	if balance.Total() < w.minEstimatedCostSPU {
		w.recordFailureMetadata(ctx, doc, "insufficient SPU balance for LLM extraction")
		return &retryableError{
			err:   apperr.New(apperr.CreditExhausted, "organization has insufficient SPU balance for LLM extraction"),
			delay: 5 * time.Minute,
		}
	}

	if err := w.docs.SetState(ctx, doc.ID, document.StateLLMProcessing); err != nil {
		return fmt.Errorf("transitioning to llm_processing: %w", err)
	}

	var schemaRev *configregistry.SchemaRevision
	if x.SchemaID != nil && x.SchemaVersion != nil {
		rev, err := w.schemas.GetVersion(ctx, *x.SchemaID, *x.SchemaVersion)
		if err != nil {
			return fmt.Errorf("loading schema revision: %w", err)
		}
		schemaRev = &rev
	}

	req, err := w.buildRequest(ctx, doc, x, schemaRev)
	if err != nil {
		return fmt.Errorf("building LLM request: %w", err)
	}

	provider, err := w.providers.GetForModel(x.Model)
	if err != nil {
		return apperr.Wrap(apperr.ProviderPermanent, "resolving LLM provider", err)
	}

	resp, err := provider.ChatCompletion(ctx, req)
	if err != nil {
		return w.handleProviderError(ctx, doc, job, err)
	}

	parsed, err := parseExtraction(resp.Content)
	if err != nil {
		if setErr := w.docs.SetState(ctx, doc.ID, document.StateLLMFailed); setErr != nil {
			return fmt.Errorf("transitioning to llm_failed after unparseable response: %w", setErr)
		}
		w.recordFailureMetadata(ctx, doc, "LLM response was not valid JSON")
		return nil
	}

	if _, err := w.results.Upsert(ctx, doc.ID, x.PromptRevID, x.PromptID, x.PromptVersion, parsed); err != nil {
		return fmt.Errorf("persisting LLM result: %w", err)
	}

	if err := w.docs.SetState(ctx, doc.ID, document.StateLLMCompleted); err != nil {
		return fmt.Errorf("transitioning to llm_completed: %w", err)
	}

	pricing, _ := w.pricing.GetPricing(provider.Name(), x.Model)
	cost := credit.LLMCost(resp.Usage.InputTokens, resp.Usage.OutputTokens, pricing.InputPer1M, pricing.OutputPer1M, w.spuPerUSD)
	if _, err := w.credit.Debit(ctx, doc.OrganizationID, credit.OperationLLM, doc.ID+":"+x.PromptRevID, cost); err != nil {
		return fmt.Errorf("recording LLM SPU usage: %w", err)
	}

	return nil
}

// handleProviderError classifies a provider call failure via
// llmprovider.StatusError.Transient: 429/5xx are retried with capped
// backoff up to the job's max attempts; anything else (and any error the
// connector did not wrap in a StatusError, e.g. a network failure after
// its own internal retries) is treated conservatively as transient too,
// except once we can positively identify a non-retryable client error.
func (w *Worker) handleProviderError(ctx context.Context, doc document.Document, job queue.Job, err error) error {
	var statusErr *llmprovider.StatusError
	transient := true
	if errors.As(err, &statusErr) {
		transient = statusErr.Transient()
	}

	if transient {
		return &retryableError{err: err, delay: backoffFor(job.Attempts)}
	}

	if setErr := w.docs.SetState(ctx, doc.ID, document.StateLLMFailed); setErr != nil {
		return fmt.Errorf("transitioning to llm_failed after %w: %v", err, setErr)
	}
	w.recordFailureMetadata(ctx, doc, err.Error())
	return nil
}

// recordFailureMetadata merges an "error" key into the document's
// metadata so clients can see why extraction stalled or failed. Failures
// writing it are swallowed: it is a diagnostic aid, not the primary
// outcome of the job.
func (w *Worker) recordFailureMetadata(ctx context.Context, doc document.Document, reason string) {
	metadata := make(map[string]string, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		metadata[k] = v
	}
	metadata["error"] = reason
	_ = w.docs.Update(ctx, doc.OrganizationID, doc.ID, document.UpdateParams{Metadata: metadata})
}
