package utils

import (
	"strings"
	"testing"
)

func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{12.345, 12.35},
		{12.344, 12.34},
		{150, 150},
		{0.005, 0.01},
		{-1.005, -1},
	}
	for _, tc := range cases {
		if got := Round2(tc.in); got != tc.want {
			t.Errorf("Round2(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestGenerateReferenceID(t *testing.T) {
	ref := GenerateReferenceID(42)
	if !strings.HasPrefix(ref, "BRB-") {
		t.Fatalf("reference %q missing BRB- prefix", ref)
	}
	if !strings.HasSuffix(ref, "42") {
		t.Fatalf("reference %q missing user id suffix", ref)
	}

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		r := GenerateReferenceID(1)
		if seen[r] {
			t.Fatalf("duplicate reference generated: %s", r)
		}
		seen[r] = true
	}
}
