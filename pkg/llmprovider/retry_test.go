package llmprovider

import "testing"

func TestStatusErrorTransient(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{401, false},
		{404, false},
	}
	for _, c := range cases {
		e := &StatusError{StatusCode: c.code}
		if got := e.Transient(); got != c.want {
			t.Errorf("StatusError{%d}.Transient() = %v, want %v", c.code, got, c.want)
		}
	}
}

func TestBackoffWithJitter_Monotonic(t *testing.T) {
	if backoffWithJitter(1) < 1_000_000_000 {
		t.Error("expected attempt 1 backoff to be at least 1s")
	}
	if backoffWithJitter(2) < 2_000_000_000 {
		t.Error("expected attempt 2 backoff to be at least 2s")
	}
}
