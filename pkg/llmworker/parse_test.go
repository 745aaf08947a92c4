package llmworker

import "testing"

func TestParseExtraction_Valid(t *testing.T) {
	got, err := parseExtraction(`  {"invoice_number": "INV-1", "total": 42}  `)
	if err != nil {
		t.Fatalf("parseExtraction: %v", err)
	}
	if string(got) != `{"invoice_number": "INV-1", "total": 42}` {
		t.Errorf("got %q", got)
	}
}

func TestParseExtraction_Invalid(t *testing.T) {
	if _, err := parseExtraction("this is not json"); err == nil {
		t.Error("expected error for non-JSON content")
	}
}

func TestParseExtraction_EmptyString(t *testing.T) {
	if _, err := parseExtraction(""); err == nil {
		t.Error("expected error for empty content")
	}
}
