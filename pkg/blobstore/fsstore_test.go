package blobstore

import (
	"bytes"
	"context"
	"io"
	"testing"
)

func TestFSStore_PutGetDeleteExists(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() error: %v", err)
	}
	ctx := context.Background()
	key := Original("doc1", "pdf")

	if ok, err := store.Exists(ctx, key); err != nil || ok {
		t.Fatalf("Exists() before Put = %v, %v; want false, nil", ok, err)
	}

	want := []byte("hello document")
	if err := store.Put(ctx, key, bytes.NewReader(want)); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	if ok, err := store.Exists(ctx, key); err != nil || !ok {
		t.Fatalf("Exists() after Put = %v, %v; want true, nil", ok, err)
	}

	r, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading blob: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Get() = %q, want %q", got, want)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if ok, err := store.Exists(ctx, key); err != nil || ok {
		t.Fatalf("Exists() after Delete = %v, %v; want false, nil", ok, err)
	}
}

func TestFSStore_DeleteMissingIsNoop(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() error: %v", err)
	}
	if err := store.Delete(context.Background(), Original("missing", "pdf")); err != nil {
		t.Errorf("Delete() of missing key returned error: %v", err)
	}
}

func TestArtifactNaming(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"original", Original("doc1", "pdf"), "doc1.pdf"},
		{"page", Page("doc1", 3), "doc1.page.3.png"},
		{"ocr blocks", OCRBlocks("doc1"), "doc1.ocr_blocks.json"},
		{"ocr text", OCRText("doc1"), "doc1.ocr_text.txt"},
		{"ocr text page", OCRTextPage("doc1", 2), "doc1.ocr_text.2.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestContentHash_Deterministic(t *testing.T) {
	a := ContentHash([]byte("same bytes"))
	b := ContentHash([]byte("same bytes"))
	c := ContentHash([]byte("different bytes"))

	if a != b {
		t.Errorf("ContentHash() not deterministic: %q != %q", a, b)
	}
	if a == c {
		t.Errorf("ContentHash() collided for different input")
	}
	if len(a) != 64 {
		t.Errorf("ContentHash() length = %d, want 64 (hex SHA-256)", len(a))
	}
}
