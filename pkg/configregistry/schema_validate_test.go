package configregistry

import "testing"

func TestValidateResponseFormat(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		wantErr bool
	}{
		{
			name:   "strict object schema",
			format: `{"type":"object","additionalProperties":false,"properties":{"invoice_number":{"type":"string"}}}`,
		},
		{
			name:   "nested strict object schema",
			format: `{"type":"object","additionalProperties":false,"properties":{"vendor":{"type":"object","additionalProperties":false,"properties":{"name":{"type":"string"}}}}}`,
		},
		{
			name:    "missing additionalProperties",
			format:  `{"type":"object","properties":{"invoice_number":{"type":"string"}}}`,
			wantErr: true,
		},
		{
			name:    "additionalProperties true",
			format:  `{"type":"object","additionalProperties":true,"properties":{"invoice_number":{"type":"string"}}}`,
			wantErr: true,
		},
		{
			name:    "nested object missing additionalProperties",
			format:  `{"type":"object","additionalProperties":false,"properties":{"vendor":{"type":"object","properties":{"name":{"type":"string"}}}}}`,
			wantErr: true,
		},
		{
			name:    "not valid JSON-Schema",
			format:  `{"type":123}`,
			wantErr: true,
		},
		{
			name:    "not a JSON object",
			format:  `"just a string"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateResponseFormat([]byte(tt.format))
			if tt.wantErr && err == nil {
				t.Errorf("validateResponseFormat(%s) = nil, want error", tt.format)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("validateResponseFormat(%s) = %v, want nil", tt.format, err)
			}
		})
	}
}
