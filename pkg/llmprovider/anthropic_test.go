package llmprovider

import "testing"

func TestConvertContentToAnthropic_Multimodal(t *testing.T) {
	parts := []ContentPart{
		{Type: "text", Text: "describe this page"},
		{Type: "image", ImageData: "YWJj"},
	}
	got, ok := convertContentToAnthropic(parts).([]map[string]any)
	if !ok {
		t.Fatalf("expected []map[string]any, got %T", convertContentToAnthropic(parts))
	}
	if len(got) != 2 {
		t.Fatalf("got %d parts, want 2", len(got))
	}
	if got[1]["type"] != "image" {
		t.Errorf("image part type = %v, want image", got[1]["type"])
	}
	source, ok := got[1]["source"].(map[string]string)
	if !ok || source["data"] != "YWJj" || source["type"] != "base64" {
		t.Errorf("source = %+v", got[1]["source"])
	}
}

func TestAnthropicConvertRequest_SystemPromptLifted(t *testing.T) {
	p := NewAnthropicProvider(ProviderConfig{APIKey: "test"})
	req := ChatRequest{
		Model: "claude-3-5-sonnet-20241022",
		Messages: []ChatMessage{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hi"},
		},
	}

	out := p.convertRequest(req, false)
	if out.System != "be terse" {
		t.Errorf("System = %q, want %q", out.System, "be terse")
	}
	if len(out.Messages) != 1 {
		t.Fatalf("got %d messages, want 1 (system lifted out)", len(out.Messages))
	}
	if out.Messages[0].Role != "user" {
		t.Errorf("Messages[0].Role = %q", out.Messages[0].Role)
	}
	if out.MaxTokens != defaultMaxTokens {
		t.Errorf("MaxTokens = %d, want default %d", out.MaxTokens, defaultMaxTokens)
	}
}

func TestAnthropicConvertRequest_ExplicitMaxTokens(t *testing.T) {
	p := NewAnthropicProvider(ProviderConfig{APIKey: "test"})
	maxTokens := 256
	req := ChatRequest{
		Model:     "claude-3-5-haiku-20241022",
		Messages:  []ChatMessage{{Role: "user", Content: "hi"}},
		MaxTokens: &maxTokens,
	}

	out := p.convertRequest(req, true)
	if out.MaxTokens != 256 {
		t.Errorf("MaxTokens = %d, want 256", out.MaxTokens)
	}
	if !out.Stream {
		t.Error("expected Stream=true")
	}
}
