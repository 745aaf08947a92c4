package llmprovider

import "testing"

func TestConvertContentToOpenAI_String(t *testing.T) {
	got := convertContentToOpenAI("hello")
	if got != "hello" {
		t.Errorf("got %v, want unchanged string", got)
	}
}

func TestConvertContentToOpenAI_Multimodal(t *testing.T) {
	parts := []ContentPart{
		{Type: "text", Text: "describe this page"},
		{Type: "image", ImageData: "YWJj"},
	}
	got, ok := convertContentToOpenAI(parts).([]map[string]any)
	if !ok {
		t.Fatalf("expected []map[string]any, got %T", convertContentToOpenAI(parts))
	}
	if len(got) != 2 {
		t.Fatalf("got %d parts, want 2", len(got))
	}
	if got[0]["type"] != "text" || got[0]["text"] != "describe this page" {
		t.Errorf("text part = %+v", got[0])
	}
	if got[1]["type"] != "image_url" {
		t.Errorf("image part type = %v, want image_url", got[1]["type"])
	}
	imageURL, ok := got[1]["image_url"].(map[string]string)
	if !ok || imageURL["url"] != "data:image/png;base64,YWJj" {
		t.Errorf("image_url = %+v", got[1]["image_url"])
	}
}

func TestOpenAIConvertRequest(t *testing.T) {
	p := NewOpenAIProvider(ProviderConfig{APIKey: "test"})
	maxTokens := 512
	req := ChatRequest{
		Model: "gpt-4o",
		Messages: []ChatMessage{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hi"},
		},
		MaxTokens:      &maxTokens,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	}

	out := p.convertRequest(req, false)
	if out.Model != "gpt-4o" {
		t.Errorf("Model = %q", out.Model)
	}
	if len(out.Messages) != 2 {
		t.Fatalf("got %d messages, want 2 (system included)", len(out.Messages))
	}
	if out.Messages[0].Role != "system" {
		t.Errorf("expected system message preserved as a message, got role %q", out.Messages[0].Role)
	}
	if out.MaxTokens == nil || *out.MaxTokens != 512 {
		t.Errorf("MaxTokens = %v, want 512", out.MaxTokens)
	}
	if out.ResponseFormat == nil || out.ResponseFormat.Type != "json_object" {
		t.Errorf("ResponseFormat = %+v", out.ResponseFormat)
	}
}
