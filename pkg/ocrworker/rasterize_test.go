package ocrworker

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestRasterizePages_UnsupportedFormat(t *testing.T) {
	pages, err := rasterizePages("pdf", []byte("%PDF-1.4..."))
	if err != nil {
		t.Fatalf("rasterizePages() error = %v, want nil", err)
	}
	if pages != nil {
		t.Errorf("rasterizePages() = %v, want nil", pages)
	}
}

func TestRasterizePages_PNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test fixture: %v", err)
	}

	pages, err := rasterizePages("png", buf.Bytes())
	if err != nil {
		t.Fatalf("rasterizePages() error = %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("rasterizePages() = %d pages, want 1", len(pages))
	}
	if _, _, err := image.Decode(bytes.NewReader(pages[0])); err != nil {
		t.Errorf("output page is not a valid image: %v", err)
	}
}
