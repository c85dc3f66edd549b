package unit

import "testing"

func TestNormalizeMapsSpeechVariants(t *testing.T) {
	cases := map[string]string{
		"bus":      "dus",
		" DOS ":    "dus",
		"doos":     "dus",
		"Box":      "dus",
		"pek":      "pak",
		"pax":      "pak",
		"biji":     "pcs",
		"butir":    "pcs",
		"Kilo":     "kg",
		"kilogram": "kg",
		"liter":    "ltr",
		"sachet":   "sachet",
		"":         "",
	}
	for raw, want := range cases {
		if got := Normalize(raw); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		unit string
		want Class
	}{
		{"dus", Pack},
		{"bos", Pack},
		{"karton", Pack},
		{"lusin", Pack},
		{"sak", Pack},
		{"kg", Bulk},
		{"kilo", Bulk},
		{"ons", Bulk},
		{"ml", Bulk},
		{"pcs", Piece},
		{"bungkus", Piece},
		{"", Piece},
	}
	for _, tc := range cases {
		if got := Classify(tc.unit); got != tc.want {
			t.Fatalf("Classify(%q) = %s, want %s", tc.unit, got, tc.want)
		}
	}
}

func TestSmallUnit(t *testing.T) {
	if got := SmallUnit("kilo"); got != "kg" {
		t.Fatalf("expected bulk unit to stay kg, got %q", got)
	}
	if got := SmallUnit("dus"); got != "pcs" {
		t.Fatalf("expected pack small unit pcs, got %q", got)
	}
	if got := SmallUnit("bungkus"); got != "pcs" {
		t.Fatalf("expected piece small unit pcs, got %q", got)
	}
	if got := OrDefault("  "); got != "pcs" {
		t.Fatalf("expected empty unit to default to pcs, got %q", got)
	}
}
