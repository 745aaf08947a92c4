package configregistry

import "testing"

func TestPrefixColumns(t *testing.T) {
	got := prefixColumns("sr", "schema_revid, schema_id, schema_version")
	want := "sr.schema_revid, sr.schema_id, sr.schema_version"
	if got != want {
		t.Errorf("prefixColumns() = %q, want %q", got, want)
	}
}

func TestNormalizeJSON_EqualUnderKeyReorderAndWhitespace(t *testing.T) {
	a := []byte(`{"a":1,"b":2}`)
	b := []byte(`{ "b": 2, "a": 1 }`)

	na, nb := normalizeJSON(a), normalizeJSON(b)
	if string(na) != string(nb) {
		t.Errorf("normalizeJSON() not equal: %s vs %s", na, nb)
	}
}

func TestNormalizeJSON_Differs(t *testing.T) {
	a := normalizeJSON([]byte(`{"a":1}`))
	b := normalizeJSON([]byte(`{"a":2}`))
	if string(a) == string(b) {
		t.Errorf("normalizeJSON() collided for different input")
	}
}

func TestNormalizeJSON_InvalidReturnsUnchanged(t *testing.T) {
	invalid := []byte(`not json`)
	if got := normalizeJSON(invalid); string(got) != string(invalid) {
		t.Errorf("normalizeJSON(invalid) = %q, want unchanged %q", got, invalid)
	}
}

func TestEqualTagIDs(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want bool
	}{
		{"both empty", nil, nil, true},
		{"same order", []string{"x", "y"}, []string{"x", "y"}, true},
		{"different order", []string{"x", "y"}, []string{"y", "x"}, true},
		{"different length", []string{"x"}, []string{"x", "y"}, false},
		{"different contents", []string{"x", "y"}, []string{"x", "z"}, false},
		{"duplicate counts differ", []string{"x", "x"}, []string{"x", "y"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := equalTagIDs(tt.a, tt.b); got != tt.want {
				t.Errorf("equalTagIDs(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestEqualStringPtr(t *testing.T) {
	a, b := "x", "x"
	c := "y"
	tests := []struct {
		name string
		a, b *string
		want bool
	}{
		{"both nil", nil, nil, true},
		{"one nil", &a, nil, false},
		{"equal values", &a, &b, true},
		{"different values", &a, &c, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := equalStringPtr(tt.a, tt.b); got != tt.want {
				t.Errorf("equalStringPtr() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEqualIntPtr(t *testing.T) {
	a, b := 1, 1
	c := 2
	tests := []struct {
		name string
		a, b *int
		want bool
	}{
		{"both nil", nil, nil, true},
		{"one nil", &a, nil, false},
		{"equal values", &a, &b, true},
		{"different values", &a, &c, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := equalIntPtr(tt.a, tt.b); got != tt.want {
				t.Errorf("equalIntPtr() = %v, want %v", got, tt.want)
			}
		})
	}
}
