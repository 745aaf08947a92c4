package llmprovider

import "testing"

func TestDetectProvider(t *testing.T) {
	cases := []struct {
		model string
		want  string
	}{
		{"claude-3-5-sonnet-20241022", "anthropic"},
		{"Claude-3-Opus-20240229", "anthropic"},
		{"gpt-4o", "openai"},
		{"gpt-4o-mini", "openai"},
		{"o1-mini", "openai"},
		{"o3-mini", "openai"},
		{"llama-3-70b", ""},
	}
	for _, c := range cases {
		if got := DetectProvider(c.model); got != c.want {
			t.Errorf("DetectProvider(%q) = %q, want %q", c.model, got, c.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(NewOpenAIProvider(ProviderConfig{APIKey: "test"}))
	r.Register(NewAnthropicProvider(ProviderConfig{APIKey: "test"}))

	p, err := r.GetForModel("gpt-4o")
	if err != nil {
		t.Fatalf("GetForModel(gpt-4o): %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("got provider %q, want openai", p.Name())
	}

	p, err = r.GetForModel("claude-3-5-haiku-20241022")
	if err != nil {
		t.Fatalf("GetForModel(claude): %v", err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("got provider %q, want anthropic", p.Name())
	}

	if _, err := r.GetForModel("unknown-model"); err == nil {
		t.Error("expected error for unrecognized model")
	}

	models := r.EnabledModels()
	if len(models) == 0 {
		t.Error("expected non-empty EnabledModels")
	}
}

func TestRegistryGetForModel_NotRegistered(t *testing.T) {
	r := NewRegistry()
	if _, err := r.GetForModel("gpt-4o"); err == nil {
		t.Error("expected error when openai provider is not registered")
	}
}
