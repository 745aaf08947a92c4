package ocrworker

import (
	"reflect"
	"testing"
)

func TestIsPreText(t *testing.T) {
	tests := []struct {
		ext  string
		want bool
	}{
		{"txt", true},
		{"csv", true},
		{"md", true},
		{"json", true},
		{"pdf", false},
		{"png", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isPreText(tt.ext); got != tt.want {
			t.Errorf("isPreText(%q) = %v, want %v", tt.ext, got, tt.want)
		}
	}
}

func TestResult_PageText(t *testing.T) {
	r := Result{
		PageCount: 2,
		Blocks: []Block{
			{Text: "hello", Page: 1},
			{Text: "world", Page: 1},
			{Text: "page two", Page: 2},
			{Text: "out of range", Page: 5},
		},
	}

	got := r.PageText()
	want := []string{"hello\nworld", "page two"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PageText() = %#v, want %#v", got, want)
	}
}

func TestResult_PageText_Empty(t *testing.T) {
	r := Result{PageCount: 0}
	if got := r.PageText(); got != nil {
		t.Errorf("PageText() = %#v, want nil", got)
	}
}
