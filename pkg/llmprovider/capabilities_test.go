package llmprovider

import "testing"

func TestSupportsJSONSchema(t *testing.T) {
	if !SupportsJSONSchema("gpt-4o") {
		t.Error("expected gpt-4o to support json schema")
	}
	if SupportsJSONSchema("claude-3-5-sonnet-20241022") {
		t.Error("expected Anthropic models to not support json schema")
	}
}

func TestSupportsPDFInput(t *testing.T) {
	if !SupportsPDFInput("claude-3-5-sonnet-20241022") {
		t.Error("expected claude-3-5-sonnet to support PDF input")
	}
	if !SupportsPDFInput("gpt-4o") {
		t.Error("expected gpt-4o to support PDF input")
	}
	if SupportsPDFInput("gpt-4") {
		t.Error("expected gpt-4 (no vision) to not support PDF input")
	}
}
