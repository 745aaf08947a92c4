package llmworker

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/analytiqhub/docrouter/pkg/blobstore"
	"github.com/analytiqhub/docrouter/pkg/configregistry"
	"github.com/analytiqhub/docrouter/pkg/document"
	"github.com/analytiqhub/docrouter/pkg/llmprovider"
)

// extractionTemperature is the fixed temperature used for extraction
// calls; the chat surface (run_llm_chat) lets callers override it.
const extractionTemperature = 0.1

func (w *Worker) buildRequest(ctx context.Context, doc document.Document, x extraction, schemaRev *configregistry.SchemaRevision) (llmprovider.ChatRequest, error) {
	ocrText, err := w.readBlobText(ctx, blobstore.OCRText(doc.ID))
	if err != nil {
		return llmprovider.ChatRequest{}, fmt.Errorf("reading OCR text: %w", err)
	}

	userContent, err := w.buildUserContent(ctx, doc, x.Model, ocrText)
	if err != nil {
		return llmprovider.ChatRequest{}, err
	}

	var responseFormat *llmprovider.ResponseFormat
	if schemaRev != nil && llmprovider.SupportsJSONSchema(x.Model) {
		responseFormat = &llmprovider.ResponseFormat{Type: "json_schema", Schema: schemaRev.ResponseFormat}
	} else {
		responseFormat = &llmprovider.ResponseFormat{Type: "json_object"}
	}

	temperature := extractionTemperature
	return llmprovider.ChatRequest{
		Model: x.Model,
		Messages: []llmprovider.ChatMessage{
			{Role: "system", Content: x.Content},
			{Role: "user", Content: userContent},
		},
		Temperature:    &temperature,
		ResponseFormat: responseFormat,
	}, nil
}

// buildUserContent returns OCR text alone when the model has no PDF/image
// input support (or the document has no rasterized pages), and a
// multimodal []ContentPart (text plus every page image) otherwise.
func (w *Worker) buildUserContent(ctx context.Context, doc document.Document, model, ocrText string) (any, error) {
	if !llmprovider.SupportsPDFInput(model) || doc.NPages == 0 {
		return ocrText, nil
	}
	hasPages, err := w.blobs.Exists(ctx, blobstore.Page(doc.ID, 1))
	if err != nil {
		return nil, fmt.Errorf("checking page images: %w", err)
	}
	if !hasPages {
		return ocrText, nil
	}

	parts := []llmprovider.ContentPart{{Type: "text", Text: ocrText}}
	for n := 1; n <= doc.NPages; n++ {
		data, err := w.readBlobBytes(ctx, blobstore.Page(doc.ID, n))
		if err != nil {
			return nil, fmt.Errorf("reading page %d image: %w", n, err)
		}
		parts = append(parts, llmprovider.ContentPart{Type: "image", ImageData: base64.StdEncoding.EncodeToString(data)})
	}
	return parts, nil
}

func (w *Worker) readBlobBytes(ctx context.Context, key string) ([]byte, error) {
	r, err := w.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (w *Worker) readBlobText(ctx context.Context, key string) (string, error) {
	data, err := w.readBlobBytes(ctx, key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
