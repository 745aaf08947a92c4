package llmprovider

import "testing"

func TestGetPricing(t *testing.T) {
	pc := DefaultPricing()

	if _, ok := pc.GetPricing("openai", "gpt-4o"); !ok {
		t.Error("expected exact match for openai/gpt-4o")
	}

	if _, ok := pc.GetPricing("unknown-provider", "gpt-4o"); !ok {
		t.Error("expected suffix fallback match for gpt-4o under any provider prefix")
	}

	if _, ok := pc.GetPricing("openai", "no-such-model"); ok {
		t.Error("expected no match for unknown model")
	}
}

func TestCalculateCost(t *testing.T) {
	pc := DefaultPricing()

	cost := pc.CalculateCost("openai", "gpt-4o", Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000})
	want := 2.50 + 10.00
	if cost != want {
		t.Errorf("CalculateCost = %v, want %v", cost, want)
	}

	if cost := pc.CalculateCost("openai", "no-such-model", Usage{InputTokens: 1000, OutputTokens: 1000}); cost != 0 {
		t.Errorf("CalculateCost for unknown model = %v, want 0", cost)
	}
}

func TestSetPricing(t *testing.T) {
	pc := DefaultPricing()
	pc.SetPricing("custom/my-model", ModelPricing{InputPer1M: 1, OutputPer1M: 2})

	p, ok := pc.GetPricing("custom", "my-model")
	if !ok {
		t.Fatal("expected SetPricing to be visible via GetPricing")
	}
	if p.InputPer1M != 1 || p.OutputPer1M != 2 {
		t.Errorf("got %+v, want {1 2}", p)
	}
}
