package llmprovider

import (
	"math"
	"strings"
	"sync"
)

// ModelPricing is per-model token pricing in USD per 1M tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// PricingConfig holds pricing for every model this module's connectors can
// serve, keyed "provider/model".
type PricingConfig struct {
	mu      sync.RWMutex
	pricing map[string]ModelPricing
}

// DefaultPricing returns the built-in pricing table for the OpenAI and
// Anthropic models this module's connectors implement.
func DefaultPricing() *PricingConfig {
	return &PricingConfig{
		pricing: map[string]ModelPricing{
			"openai/gpt-4o":      {InputPer1M: 2.50, OutputPer1M: 10.00},
			"openai/gpt-4o-mini": {InputPer1M: 0.15, OutputPer1M: 0.60},
			"openai/gpt-4-turbo": {InputPer1M: 10.00, OutputPer1M: 30.00},
			"openai/gpt-4":       {InputPer1M: 30.00, OutputPer1M: 60.00},
			"openai/o1":          {InputPer1M: 15.00, OutputPer1M: 60.00},
			"openai/o1-mini":     {InputPer1M: 3.00, OutputPer1M: 12.00},

			"anthropic/claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
			"anthropic/claude-3-5-haiku-20241022":  {InputPer1M: 0.80, OutputPer1M: 4.00},
			"anthropic/claude-3-opus-20240229":     {InputPer1M: 15.00, OutputPer1M: 75.00},
			"anthropic/claude-3-sonnet-20240229":   {InputPer1M: 3.00, OutputPer1M: 15.00},
			"anthropic/claude-3-haiku-20240307":    {InputPer1M: 0.25, OutputPer1M: 1.25},
		},
	}
}

// GetPricing returns the pricing for a model, trying "provider/model"
// first and then a bare model-name suffix match across all entries.
func (pc *PricingConfig) GetPricing(providerName, model string) (ModelPricing, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	if p, ok := pc.pricing[providerName+"/"+model]; ok {
		return p, true
	}

	lowerModel := strings.ToLower(model)
	for k, p := range pc.pricing {
		if _, suffix, ok := strings.Cut(k, "/"); ok && strings.ToLower(suffix) == lowerModel {
			return p, true
		}
	}
	return ModelPricing{}, false
}

// CalculateCost computes the USD cost of a completion from its token
// usage. Unknown models cost 0 rather than erroring, since pricing gaps
// should not block extraction.
func (pc *PricingConfig) CalculateCost(providerName, model string, usage Usage) float64 {
	pricing, found := pc.GetPricing(providerName, model)
	if !found {
		return 0
	}
	usd := float64(usage.InputTokens)/1_000_000*pricing.InputPer1M +
		float64(usage.OutputTokens)/1_000_000*pricing.OutputPer1M
	return math.Round(usd*1e8) / 1e8
}

// SetPricing adds or overrides pricing for "provider/model".
func (pc *PricingConfig) SetPricing(key string, pricing ModelPricing) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.pricing[key] = pricing
}
