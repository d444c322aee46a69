package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// =============================================================================
// SIMULATED CLIENT
// =============================================================================
//
// The simulated client is the degraded-mode and test backend. It recognizes
// the two prompt families gala issues — category weight inference and
// missing-field extraction — and answers them deterministically: weights
// from keyword rules, extraction from regex scans over the page content
// embedded in the prompt. Same prompt, same answer, every run.

// Simulated is a deterministic Client.
type Simulated struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// NewSimulated creates a simulated client. The seed only affects tie-breaks;
// all recognized prompts answer deterministically from their content.
func NewSimulated(seed int64) *Simulated {
	if seed == 0 {
		seed = 1
	}
	return &Simulated{rand: rand.New(rand.NewSource(seed))}
}

// Provider implements Client.
func (s *Simulated) Provider() string { return "simulated" }

// Complete implements Client.
func (s *Simulated) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "category weights"):
		return s.weights(lower), nil
	case strings.Contains(lower, "missing fields"):
		return s.extract(prompt), nil
	case strings.Contains(lower, "summary"):
		return "Plan summary: selections selected within budget.", nil
	}
	return "{}", nil
}

// weights answers the budget distributor's inference prompt. Keyword rules
// stand in for actual preference understanding; the output shape matches
// what the prompt requests so the parse path is exercised for real.
func (s *Simulated) weights(lower string) string {
	venue, catering, decor := 0.40, 0.35, 0.25
	switch {
	case containsAny(lower, "food", "menu", "gourmet", "dining", "cuisine"):
		venue, catering, decor = 0.30, 0.47, 0.23
	case containsAny(lower, "luxury", "elegant", "exclusive", "mansion"):
		venue, catering, decor = 0.48, 0.30, 0.22
	case containsAny(lower, "flower", "floral", "decoration", "aesthetic", "rustic"):
		venue, catering, decor = 0.33, 0.30, 0.37
	case containsAny(lower, "garden", "outdoor", "beach", "views"):
		venue, catering, decor = 0.46, 0.32, 0.22
	}
	return fmt.Sprintf(`{"venue": %.2f, "catering": %.2f, "decor": %.2f}`, venue, catering, decor)
}

var (
	capacityRe = regexp.MustCompile(`(?i)(?:capacity|guests?|aforo)\D{0,20}?(\d{2,5})`)
	priceRe    = regexp.MustCompile(`(?i)(?:[$€]\s?([\d,]+(?:\.\d+)?)|([\d,]+(?:\.\d+)?)\s?(?:€|euros?|usd|dollars?))`)
	locationRe = regexp.MustCompile(`(?i)(?:location|address|ubicaci[oó]n|direcci[oó]n)\s*[:\-]\s*([^\n<.]{3,80})`)
)

// extract answers the enrichment extraction prompt: it scans the page
// content for whichever requested fields the regex vocabulary covers and
// omits the rest, mirroring a model that only reports what it found.
func (s *Simulated) extract(prompt string) string {
	fields := requestedFields(prompt)
	out := make(map[string]any)

	for _, f := range fields {
		switch f {
		case "capacity":
			if m := capacityRe.FindStringSubmatch(prompt); m != nil {
				if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
					out["capacity"] = n
				}
			}
		case "price":
			if m := priceRe.FindStringSubmatch(prompt); m != nil {
				raw := m[1]
				if raw == "" {
					raw = m[2]
				}
				if p, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64); err == nil {
					out["price"] = p
				}
			}
		case "location":
			if m := locationRe.FindStringSubmatch(prompt); m != nil {
				out["location"] = strings.TrimSpace(m[1])
			}
		case "services", "service_levels", "meal_types", "dietary_options", "floral_arrangements":
			if items := scanList(prompt, f); len(items) > 0 {
				out[f] = items
			}
		}
	}

	data, _ := json.Marshal(out)
	return string(data)
}

// requestedFields reads the field list out of the extraction prompt. The
// prompt enumerates the expected JSON shape one quoted key per line.
var fieldKeyRe = regexp.MustCompile(`"([a-z_]+)"\s*:`)

func requestedFields(prompt string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, m := range fieldKeyRe.FindAllStringSubmatch(prompt, -1) {
		if _, dup := seen[m[1]]; !dup {
			seen[m[1]] = struct{}{}
			out = append(out, m[1])
		}
	}
	return out
}

// scanList looks for "<field label>: a, b, c" runs in the page content.
func scanList(prompt, field string) []string {
	label := strings.ReplaceAll(field, "_", " ")
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(label) + `\s*[:\-]\s*([^\n<.]{3,160})`)
	m := re.FindStringSubmatch(prompt)
	if m == nil {
		return nil
	}
	var items []string
	for _, part := range strings.Split(m[1], ",") {
		if p := strings.TrimSpace(part); p != "" {
			items = append(items, p)
		}
	}
	return items
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// =============================================================================
// SIMULATED SEARCH
// =============================================================================

// SimulatedSearch fabricates stable search hits for a query. Used when no
// search credentials exist but the enrichment pipeline still needs its
// secondary path exercised.
type SimulatedSearch struct {
	seed int64
}

// NewSimulatedSearch creates the degraded-mode search client.
func NewSimulatedSearch(seed int64) *SimulatedSearch {
	return &SimulatedSearch{seed: seed}
}

// Provider implements SearchClient.
func (s *SimulatedSearch) Provider() string { return "simulated" }

// Search implements SearchClient. Hits derive from a hash of the query so
// repeated calls agree with each other.
func (s *SimulatedSearch) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%d:%s", s.seed, query)
	n := h.Sum64()

	slug := strings.ToLower(strings.Join(strings.Fields(query), "-"))
	if len(slug) > 40 {
		slug = slug[:40]
	}
	return []SearchResult{
		{
			Title:   strings.TrimSpace(query),
			URL:     fmt.Sprintf("https://directory.example.com/%s", slug),
			Snippet: fmt.Sprintf("Location: Plaza Mayor %d, Madrid. Price: $%d. Capacity: %d guests.", n%90+1, 2000+n%6000, 50+n%200),
		},
		{
			Title:   strings.TrimSpace(query) + " — reviews",
			URL:     fmt.Sprintf("https://reviews.example.com/%s", slug),
			Snippet: "Services: catering, bar, parking. Highly rated for weddings.",
		},
	}, nil
}
