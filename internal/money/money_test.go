package money

import (
	"strings"
	"testing"

	"golang.org/x/text/language"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1234.5", 1234.5, true},
		{"1 234,5", 1234.5, true},
		{"1.234,5", 1234.5, true},
		{"1,234.5", 1234.5, true},
		{"1.234.567", 1234567, true},
		{"$ 99,90", 99.9, true},
		{"-12.5", -12.5, true},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := Parse(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("Parse(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCanonical(t *testing.T) {
	cases := []struct {
		v         float64
		precision int
		want      string
	}{
		{1234.5, 0, "1235"},
		{1234.4, 0, "1234"},
		{1234.5, 2, "1234.50"},
		{-0.5, 0, "-1"},
	}
	for _, tc := range cases {
		if got := Canonical(tc.v, tc.precision); got != tc.want {
			t.Fatalf("Canonical(%v, %d) = %q, want %q", tc.v, tc.precision, got, tc.want)
		}
	}
}

func TestFormat_GroupsThousands(t *testing.T) {
	got := Format(1234.5, 0, language.Russian)

	// Exact group separators are locale data; assert the invariants the
	// toolkit depends on: rounded digits in order, with some separator
	// between the thousands group.
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, got)
	if digits != "1235" {
		t.Fatalf("Format(1234.5, 0) digits = %q (%q), want 1235", digits, got)
	}
	if len([]rune(got)) == len(digits) {
		t.Fatalf("expected a grouping separator in %q", got)
	}
}

func TestParseAny(t *testing.T) {
	if v, ok := ParseAny(float64(10)); !ok || v != 10 {
		t.Fatalf("float64: got %v, %v", v, ok)
	}
	if v, ok := ParseAny("1234.5"); !ok || v != 1234.5 {
		t.Fatalf("string: got %v, %v", v, ok)
	}
	if _, ok := ParseAny(nil); ok {
		t.Fatalf("nil should not parse")
	}
	if _, ok := ParseAny([]any{}); ok {
		t.Fatalf("slice should not parse")
	}
}
