package types

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// PRICE NORMALIZATION
// =============================================================================

// PriceStats is the normalized view of a price attribute regardless of the
// shape it was scraped in. Count is the number of numeric leaves that
// contributed, so callers can tell a scalar from a tariff table.
type PriceStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// Mid returns the midpoint of the observed range.
func (p PriceStats) Mid() float64 {
	if p.Count == 0 {
		return 0
	}
	return (p.Min + p.Max) / 2
}

// Add folds another observation set into p.
func (p PriceStats) Add(other PriceStats) PriceStats {
	if other.Count == 0 {
		return p
	}
	if p.Count == 0 {
		return other
	}
	return PriceStats{
		Min:   math.Min(p.Min, other.Min),
		Max:   math.Max(p.Max, other.Max),
		Count: p.Count + other.Count,
	}
}

var priceNumberRe = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// NormalizePrice reduces any of the price shapes found in scraped vendor data
// to (min, max, count). Every consumer of price information calls this one
// function; there is exactly one interpretation of "the price" in the system.
//
// Accepted shapes:
//   - numbers (int, int64, float32, float64)
//   - strings with currency noise and ranges ("$1,200", "1200-1500", "from 800")
//   - maps of sub-prices ({"space_rental": 3500, "per_person": 80})
//   - lists mixing any of the above
//
// Unparseable input returns (PriceStats{}, false). Negative numbers are
// treated as noise and skipped.
func NormalizePrice(raw any) (PriceStats, bool) {
	stats := collectPrices(raw)
	return stats, stats.Count > 0
}

func collectPrices(raw any) PriceStats {
	var out PriceStats
	switch v := raw.(type) {
	case nil:
		return out
	case float64:
		out = observe(out, v)
	case float32:
		out = observe(out, float64(v))
	case int:
		out = observe(out, float64(v))
	case int64:
		out = observe(out, float64(v))
	case string:
		for _, m := range priceNumberRe.FindAllString(v, -1) {
			f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
			if err != nil {
				continue
			}
			out = observe(out, f)
		}
	case Value:
		for _, sub := range v {
			out = out.Add(collectPrices(sub))
		}
	case map[string]any:
		for _, sub := range v {
			out = out.Add(collectPrices(sub))
		}
	case []any:
		for _, sub := range v {
			out = out.Add(collectPrices(sub))
		}
	case []string:
		for _, sub := range v {
			out = out.Add(collectPrices(sub))
		}
	case []float64:
		for _, sub := range v {
			out = observe(out, sub)
		}
	}
	return out
}

func observe(p PriceStats, f float64) PriceStats {
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return p
	}
	if p.Count == 0 {
		return PriceStats{Min: f, Max: f, Count: 1}
	}
	p.Min = math.Min(p.Min, f)
	p.Max = math.Max(p.Max, f)
	p.Count++
	return p
}
