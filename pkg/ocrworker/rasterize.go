package ocrworker

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoding with image.Decode
	"image/png"
)

// rasterizeImageFormats are the inputs rasterizePages can re-encode to PNG
// directly. PDF rasterization needs a real renderer and no library in this
// module's dependency set provides one, so PDF pages are not materialized
// here: the LLM worker falls back to OCR text only for multimodal input on
// PDF documents. This is the one gap recorded without third-party
// grounding in DESIGN.md.
var rasterizeImageFormats = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
}

// rasterizePages produces one PNG per page for later LLM multimodal use.
// For single-page raster image inputs it decodes and re-encodes as PNG.
// For formats it cannot rasterize (PDF, pre-text formats) it returns a nil
// slice, which is not an error: callers simply have no page images to
// store.
func rasterizePages(ext string, data []byte) ([][]byte, error) {
	if !rasterizeImageFormats[ext] {
		return nil, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image for rasterization: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding rasterized page: %w", err)
	}
	return [][]byte{buf.Bytes()}, nil
}
