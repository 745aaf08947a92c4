// Package ocrworker drives the OCR stage of the document pipeline: it
// leases jobs from the "ocr" queue, calls an OCR Provider, persists the
// resulting blocks and text to the blob store, and enqueues the default
// LLM job. It is wired as a pkg/queue.Handler and shares that package's
// lease/ack/nack driver rather than running its own loop.
package ocrworker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/analytiqhub/docrouter/internal/apperr"
	"github.com/analytiqhub/docrouter/pkg/blobstore"
	"github.com/analytiqhub/docrouter/pkg/credit"
	"github.com/analytiqhub/docrouter/pkg/document"
	"github.com/analytiqhub/docrouter/pkg/queue"
)

// jobPayload is the "ocr" queue's job payload, enqueued by the document
// upload handler.
type jobPayload struct {
	DocumentID string `json:"document_id"`
	Force      bool   `json:"force"`
}

// llmJobPayload is the payload the OCR worker enqueues onto the "llm"
// queue once OCR completes, triggering the default prompt fanout.
type llmJobPayload struct {
	DocumentID  string `json:"document_id"`
	PromptRevID string `json:"prompt_revid"`
}

// Worker processes OCR jobs.
type Worker struct {
	docs       *document.Store
	blobs      blobstore.Store
	jobs       *queue.Store
	credit     *credit.Store
	provider   Provider
	spuPerPage float64
}

// New creates an OCR Worker.
func New(docs *document.Store, blobs blobstore.Store, jobs *queue.Store, creditStore *credit.Store, provider Provider, spuPerPage float64) *Worker {
	return &Worker{
		docs:       docs,
		blobs:      blobs,
		jobs:       jobs,
		credit:     creditStore,
		provider:   provider,
		spuPerPage: spuPerPage,
	}
}

// Handle implements queue.Handler, driving one job through the OCR state
// machine described in the document API design.
func (w *Worker) Handle(ctx context.Context, job queue.Job) error {
	var payload jobPayload
	if err := json.Unmarshal(job.PayloadJSON, &payload); err != nil {
		return apperr.Wrap(apperr.ProviderPermanent, "decoding OCR job payload", err)
	}

	doc, err := w.docs.GetByID(ctx, payload.DocumentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", payload.DocumentID, err)
	}

	if doc.State.AtLeast(document.StateOCRCompleted) && !payload.Force {
		return nil
	}

	balance, err := w.credit.GetBalance(ctx, doc.OrganizationID)
	if err != nil {
		return fmt.Errorf("checking SPU balance: %w", err)
	}
	costEstimate := credit.OCRCost(1, w.spuPerPage)
	if balance.Total() < costEstimate {
		return &retryableError{
			err:   apperr.New(apperr.CreditExhausted, "organization has insufficient SPU balance for OCR"),
			delay: 5 * time.Minute,
		}
	}

	if err := w.docs.SetState(ctx, doc.ID, document.StateOCRProcessing); err != nil {
		return fmt.Errorf("transitioning to ocr_processing: %w", err)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(doc.UserFileName), "."))

	if isPreText(ext) {
		return w.completePreText(ctx, doc, ext)
	}

	data, err := w.readOriginal(ctx, doc.BlobName)
	if err != nil {
		return fmt.Errorf("reading original blob: %w", err)
	}

	result, err := w.provider.Run(ctx, ext, data)
	if err != nil {
		return w.handleProviderError(ctx, doc, job, err)
	}

	if err := w.persistResult(ctx, doc, ext, data, result); err != nil {
		return fmt.Errorf("persisting OCR result: %w", err)
	}

	return w.finish(ctx, doc, result.PageCount)
}

// completePreText handles formats whose bytes already are the extracted
// text (txt, csv, md, json): it copies the original blob to the OCRText
// artifact and skips straight to ocr_completed without a provider call.
func (w *Worker) completePreText(ctx context.Context, doc document.Document, ext string) error {
	data, err := w.readOriginal(ctx, doc.BlobName)
	if err != nil {
		return fmt.Errorf("reading original blob: %w", err)
	}
	if err := w.blobs.Put(ctx, blobstore.OCRText(doc.ID), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("storing pre-text OCR output: %w", err)
	}
	if err := w.blobs.Put(ctx, blobstore.OCRTextPage(doc.ID, 1), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("storing pre-text page output: %w", err)
	}
	return w.finish(ctx, doc, 1)
}

func (w *Worker) readOriginal(ctx context.Context, blobName string) ([]byte, error) {
	r, err := w.blobs.Get(ctx, blobName)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// handleProviderError classifies a provider failure: transient errors are
// retried with capped exponential backoff up to the job's max attempts,
// after which (and for permanent errors) the document is marked
// ocr_failed and the job is acked rather than retried further.
func (w *Worker) handleProviderError(ctx context.Context, doc document.Document, job queue.Job, err error) error {
	appErr, _ := apperr.As(err)
	if appErr != nil && appErr.Kind == apperr.ProviderTransient {
		return &retryableError{err: err, delay: backoffFor(job.Attempts)}
	}

	if setErr := w.docs.SetState(ctx, doc.ID, document.StateOCRFailed); setErr != nil {
		return fmt.Errorf("transitioning to ocr_failed after %w: %v", err, setErr)
	}
	return nil
}

// persistResult writes the blocks JSON, per-page and combined OCR text,
// and rasterized page images for a successfully completed OCR call.
func (w *Worker) persistResult(ctx context.Context, doc document.Document, ext string, data []byte, result Result) error {
	blocksJSON, err := json.Marshal(result.Blocks)
	if err != nil {
		return fmt.Errorf("marshalling OCR blocks: %w", err)
	}
	if err := w.blobs.Put(ctx, blobstore.OCRBlocks(doc.ID), bytes.NewReader(blocksJSON)); err != nil {
		return fmt.Errorf("storing OCR blocks: %w", err)
	}

	pages := result.PageText()
	var combined strings.Builder
	for i, text := range pages {
		if err := w.blobs.Put(ctx, blobstore.OCRTextPage(doc.ID, i+1), strings.NewReader(text)); err != nil {
			return fmt.Errorf("storing page %d text: %w", i+1, err)
		}
		if i > 0 {
			combined.WriteByte('\f')
		}
		combined.WriteString(text)
	}
	if err := w.blobs.Put(ctx, blobstore.OCRText(doc.ID), strings.NewReader(combined.String())); err != nil {
		return fmt.Errorf("storing combined OCR text: %w", err)
	}

	pageImages, err := rasterizePages(ext, data)
	if err != nil {
		return fmt.Errorf("rasterizing pages: %w", err)
	}
	for i, img := range pageImages {
		if err := w.blobs.Put(ctx, blobstore.Page(doc.ID, i+1), bytes.NewReader(img)); err != nil {
			return fmt.Errorf("storing page %d image: %w", i+1, err)
		}
	}

	return nil
}

// finish transitions the document to ocr_completed, records SPU usage,
// and enqueues the default LLM job.
func (w *Worker) finish(ctx context.Context, doc document.Document, nPages int) error {
	if err := w.docs.SetOCRMetadata(ctx, doc.ID, nPages, time.Now()); err != nil {
		return fmt.Errorf("recording OCR metadata: %w", err)
	}
	if err := w.docs.SetState(ctx, doc.ID, document.StateOCRCompleted); err != nil {
		return fmt.Errorf("transitioning to ocr_completed: %w", err)
	}

	cost := credit.OCRCost(nPages, w.spuPerPage)
	if _, err := w.credit.Debit(ctx, doc.OrganizationID, credit.OperationOCR, doc.ID, cost); err != nil {
		return fmt.Errorf("recording OCR SPU usage: %w", err)
	}

	payload, err := json.Marshal(llmJobPayload{DocumentID: doc.ID, PromptRevID: "default"})
	if err != nil {
		return fmt.Errorf("encoding LLM job payload: %w", err)
	}
	if _, err := w.jobs.Enqueue(ctx, queue.QueueLLM, payload); err != nil {
		return fmt.Errorf("enqueueing LLM job: %w", err)
	}

	return nil
}
