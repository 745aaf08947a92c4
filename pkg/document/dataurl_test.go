package document

import "testing"

func TestDecodeDataURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"valid", "data:application/pdf;base64,aGVsbG8=", "hello", false},
		{"missing prefix", "aGVsbG8=", "", true},
		{"missing comma", "data:application/pdf;base64aGVsbG8=", "", true},
		{"not base64", "data:text/plain,hello", "", true},
		{"invalid base64 payload", "data:text/plain;base64,not-valid-base64!!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeDataURL(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("decodeDataURL(%q) = %q, nil; want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeDataURL(%q) unexpected error: %v", tt.input, err)
			}
			if string(got) != tt.want {
				t.Errorf("decodeDataURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
