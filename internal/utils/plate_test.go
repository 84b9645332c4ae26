package utils

import "testing"

func TestNormalizePlate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"abc1234", "ABC1234"},
		{" AB 1234 ", "AB 1234"},
		{"a-b_c#123!", "ABC123"},
		{"", ""},
		{"車abc123", "ABC123"},
		{"ABC\t123", "ABC\t123"},
	}
	for _, c := range cases {
		if got := NormalizePlate(c.in); got != c.want {
			t.Fatalf("NormalizePlate(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizePlateIdempotent(t *testing.T) {
	inputs := []string{"abc1234", " AB 1234 ", "a-b_c#123!", "51F 12345", ""}
	for _, in := range inputs {
		once := NormalizePlate(in)
		twice := NormalizePlate(once)
		if once != twice {
			t.Fatalf("NormalizePlate not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
