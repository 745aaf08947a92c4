package ocrworker

import "context"

// Block is a single recognized text element, following the shape an OCR
// provider returns per block (line, word, or table cell).
type Block struct {
	ID         string  `json:"id"`
	BlockType  string  `json:"block_type"`
	Text       string  `json:"text"`
	Page       int     `json:"page"`
	Confidence float64 `json:"confidence"`
}

// Result is the output of a completed OCR call.
type Result struct {
	Blocks    []Block
	PageCount int
}

// Provider calls an external OCR service against a document's raw bytes.
// ext is the lowercase file extension without a leading dot (e.g. "pdf",
// "png"), used to pick the right analysis path.
type Provider interface {
	Run(ctx context.Context, ext string, data []byte) (Result, error)
}

// textFormats never need an OCR provider call: their bytes already are the
// extracted text.
var textFormats = map[string]bool{
	"txt":  true,
	"csv":  true,
	"md":   true,
	"json": true,
}

// isPreText reports whether ext names a format that skips straight to
// ocr_completed without calling a Provider.
func isPreText(ext string) bool {
	return textFormats[ext]
}

// PageText splits a Result's blocks into per-page text, joining each
// page's block text with newlines in block order.
func (r Result) PageText() []string {
	if r.PageCount <= 0 {
		return nil
	}
	pages := make([]string, r.PageCount)
	for _, b := range r.Blocks {
		if b.Page < 1 || b.Page > r.PageCount {
			continue
		}
		if pages[b.Page-1] != "" {
			pages[b.Page-1] += "\n"
		}
		pages[b.Page-1] += b.Text
	}
	return pages
}
