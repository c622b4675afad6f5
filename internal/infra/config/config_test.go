package config

import (
	"testing"
	"time"
)

func TestParseDurationString(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"30s", 30 * time.Second, true},
		{"5m", 5 * time.Minute, true},
		{"2h", 2 * time.Hour, true},
		{"7d", 7 * 24 * time.Hour, true},
		{"1w", 7 * 24 * time.Hour, true},
		{"", 0, false},
		{"nope", 0, false},
		{"5x", 0, false},
	}
	for _, c := range cases {
		got, ok := parseDurationString(c.in, nil, "field")
		if ok != c.ok {
			t.Fatalf("parseDurationString(%q) ok=%v, want %v", c.in, ok, c.ok)
		}
		if ok && got != c.want {
			t.Fatalf("parseDurationString(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestSanitizeLogLevel(t *testing.T) {
	var warnings []string
	if got := sanitizeLogLevel("DEBUG", &warnings); got != "debug" {
		t.Fatalf("expected debug, got %s", got)
	}
	if got := sanitizeLogLevel("bogus", &warnings); got != defaultLogLevel {
		t.Fatalf("expected default, got %s", got)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %d", len(warnings))
	}
}
