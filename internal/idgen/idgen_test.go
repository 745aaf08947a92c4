package idgen

import "testing"

func TestNew_ShapeAndUniqueness(t *testing.T) {
	a := New()
	b := New()

	if !Valid(a) {
		t.Errorf("New() = %q, not a valid id", a)
	}
	if a == b {
		t.Errorf("New() returned the same id twice: %q", a)
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"valid", "0123456789abcdef01234567", true},
		{"too short", "0123456789abcdef", false},
		{"too long", "0123456789abcdef0123456789", false},
		{"non hex", "zzzzzzzzzzzzzzzzzzzzzzzz", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Valid(tt.in); got != tt.want {
				t.Errorf("Valid(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
