package util

import "testing"

func TestNormalizeSearchTerm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "vitamin d", "vitamin d"},
		{"null byte", "zi\x00nc", "zinc"},
		{"invalid utf8", string([]byte{'b', 0xff, '1', '2'}), "b12"},
		{"control chars", "head\x07ache", "headache"},
		{"whitespace runs", "  omega\t 3\n", "omega 3"},
		{"non ascii", "Ibuprofène", "Ibuprofène"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeSearchTerm(tt.input); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
