package credit

import "testing"

func TestOCRCost(t *testing.T) {
	tests := []struct {
		name       string
		nPages     int
		spuPerPage float64
		want       float64
	}{
		{"zero pages", 0, 1.0, 0},
		{"single page", 1, 1.0, 1},
		{"ten pages default rate", 10, 1.0, 10},
		{"fractional rate rounds up", 3, 0.5, 2},
		{"negative pages", -1, 1.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OCRCost(tt.nPages, tt.spuPerPage); got != tt.want {
				t.Errorf("OCRCost(%d, %v) = %v, want %v", tt.nPages, tt.spuPerPage, got, tt.want)
			}
		})
	}
}

func TestLLMCost(t *testing.T) {
	tests := []struct {
		name                         string
		inputTokens, outputTokens    int
		usdPerMillionIn, usdPerMillionOut, spuPerUSD float64
		want                         float64
	}{
		{
			name: "1M in 1M out at $1/$2 per million, 100 SPU per USD",
			inputTokens: 1_000_000, outputTokens: 1_000_000,
			usdPerMillionIn: 1, usdPerMillionOut: 2, spuPerUSD: 100,
			want: 300, // (1*1 + 1*2) * 100 = 300
		},
		{
			name: "small call rounds up to 1 SPU",
			inputTokens: 100, outputTokens: 50,
			usdPerMillionIn: 1, usdPerMillionOut: 2, spuPerUSD: 100,
			want: 1,
		},
		{
			name: "zero usage is free",
			inputTokens: 0, outputTokens: 0,
			usdPerMillionIn: 1, usdPerMillionOut: 2, spuPerUSD: 100,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LLMCost(tt.inputTokens, tt.outputTokens, tt.usdPerMillionIn, tt.usdPerMillionOut, tt.spuPerUSD)
			if got != tt.want {
				t.Errorf("LLMCost(...) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFractionalCost(t *testing.T) {
	tests := []struct {
		name         string
		records      int
		spuPerRecord float64
		want         float64
	}{
		{"no records", 0, 0.1, 0},
		{"ten records at 0.1 SPU each", 10, 0.1, 1.0},
		{"negative records", -5, 0.1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FractionalCost(tt.records, tt.spuPerRecord); got != tt.want {
				t.Errorf("FractionalCost(%d, %v) = %v, want %v", tt.records, tt.spuPerRecord, got, tt.want)
			}
		})
	}
}
