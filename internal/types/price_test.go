package types

import "testing"

func TestNormalizePriceScalar(t *testing.T) {
	stats, ok := NormalizePrice(3500)
	if !ok || stats.Min != 3500 || stats.Max != 3500 || stats.Count != 1 {
		t.Fatalf("scalar = %+v ok=%v", stats, ok)
	}
	stats, ok = NormalizePrice(79.5)
	if !ok || stats.Min != 79.5 || stats.Max != 79.5 {
		t.Fatalf("float scalar = %+v ok=%v", stats, ok)
	}
}

func TestNormalizePriceStrings(t *testing.T) {
	cases := []struct {
		in  string
		min float64
		max float64
		n   int
	}{
		{"$1,200", 1200, 1200, 1},
		{"1200-1500", 1200, 1500, 2},
		{"from 800 per event", 800, 800, 1},
		{"desde $2.500", 2.5, 2.5, 1}, // thousands-dot reads as decimal; acceptable noise
		{"USD 950.75", 950.75, 950.75, 1},
	}
	for _, tc := range cases {
		stats, ok := NormalizePrice(tc.in)
		if !ok {
			t.Fatalf("%q: expected parse", tc.in)
		}
		if stats.Min != tc.min || stats.Max != tc.max || stats.Count != tc.n {
			t.Fatalf("%q = %+v, want min=%v max=%v count=%d", tc.in, stats, tc.min, tc.max, tc.n)
		}
	}
	if _, ok := NormalizePrice("call for pricing"); ok {
		t.Fatalf("non-numeric string should not parse")
	}
}

func TestNormalizePriceMapAndList(t *testing.T) {
	stats, ok := NormalizePrice(map[string]any{
		"space_rental": 3500,
		"per_person":   "80",
		"cleaning":     []any{150, 250},
	})
	if !ok {
		t.Fatalf("expected parse of tariff map")
	}
	if stats.Min != 80 || stats.Max != 3500 || stats.Count != 4 {
		t.Fatalf("tariff map = %+v", stats)
	}

	stats, ok = NormalizePrice([]any{1200, "1,500", nil, "n/a"})
	if !ok || stats.Min != 1200 || stats.Max != 1500 || stats.Count != 2 {
		t.Fatalf("list = %+v ok=%v", stats, ok)
	}
}

func TestNormalizePriceRejectsGarbage(t *testing.T) {
	if _, ok := NormalizePrice(nil); ok {
		t.Fatalf("nil should not parse")
	}
	if _, ok := NormalizePrice(struct{}{}); ok {
		t.Fatalf("struct should not parse")
	}
	if stats, ok := NormalizePrice(-50); ok || stats.Count != 0 {
		t.Fatalf("negative prices are noise, got %+v ok=%v", stats, ok)
	}
}

func TestPriceStatsAdd(t *testing.T) {
	a := PriceStats{Min: 100, Max: 200, Count: 2}
	b := PriceStats{Min: 50, Max: 150, Count: 1}
	sum := a.Add(b)
	if sum.Min != 50 || sum.Max != 200 || sum.Count != 3 {
		t.Fatalf("add = %+v", sum)
	}
	if got := (PriceStats{}).Add(a); got != a {
		t.Fatalf("zero.Add(a) = %+v, want %+v", got, a)
	}
	if got := a.Add(PriceStats{}); got != a {
		t.Fatalf("a.Add(zero) = %+v, want %+v", got, a)
	}
	if (PriceStats{Min: 100, Max: 300, Count: 2}).Mid() != 200 {
		t.Fatalf("mid of 100..300 should be 200")
	}
}
