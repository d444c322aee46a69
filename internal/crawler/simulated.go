package crawler

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"

	"gala/internal/config"
	"gala/internal/graph"
	"gala/internal/types"
)

// =============================================================================
// SIMULATED CRAWLER
// =============================================================================
//
// The simulated crawler fabricates a stable vendor directory per category.
// Each URL deterministically maps to one record (hash of seed + URL), so
// repeated ingestions are idempotent and tests see the same inventory every
// run. Pages link onward within the same "directory" until the visit limit.

// Simulated is the degraded-mode and test Crawler.
type Simulated struct {
	visitLimit int
	seed       int64
}

// NewSimulated creates the simulated crawler.
func NewSimulated(cfg config.CrawlerConfig, seed int64) *Simulated {
	limit := cfg.VisitLimit
	if limit <= 0 {
		limit = 10
	}
	if seed == 0 {
		seed = 1
	}
	return &Simulated{visitLimit: limit, seed: seed}
}

// Ingest implements Crawler.
func (s *Simulated) Ingest(ctx context.Context, g *graph.Graph, category types.Category, seedURLs []string) (int, error) {
	if len(seedURLs) == 0 {
		seedURLs = defaultSeeds(category)
	}
	return ingest(ctx, g, category, seedURLs, s.visitLimit,
		func(ctx context.Context, url string) (graph.Record, []string, error) {
			return s.fabricate(category, url)
		})
}

// defaultSeeds are the directory entry points used when the user supplies
// no seed URLs of their own.
func defaultSeeds(category types.Category) []string {
	return []string{
		fmt.Sprintf("https://%s-directory.example.com/listing/1", category),
		fmt.Sprintf("https://%s-directory.example.com/listing/2", category),
	}
}

// fabricate derives one vendor record from a URL. All variety comes from
// the hash so the same URL always yields the same vendor.
func (s *Simulated) fabricate(category types.Category, url string) (graph.Record, []string, error) {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d:%s", s.seed, url)
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	var rec graph.Record
	switch category {
	case types.CategoryVenue:
		rec = fabricateVenue(url, rng)
	case types.CategoryCatering:
		rec = fabricateCatering(url, rng)
	case types.CategoryDecor:
		rec = fabricateDecor(url, rng)
	default:
		return graph.Record{}, nil, fmt.Errorf("unknown category %q", category)
	}

	// Link onward within the directory so one seed can satisfy coverage.
	base := url[:strings.LastIndex(url, "/")]
	outlinks := []string{
		fmt.Sprintf("%s/%d", base, rng.Intn(900)+1),
		fmt.Sprintf("%s/%d", base, rng.Intn(900)+901),
	}
	rec.Data["outlinks"] = outlinks
	return rec, outlinks, nil
}

var (
	venueNames  = []string{"Villa Aurora", "Palacio del Mar", "Finca Los Olivos", "Gran Hotel Central", "Hacienda Real", "Mirador del Valle", "Casa del Arte", "Jardines de Luz"}
	venueTypes  = []string{"mansion", "hotel", "garden", "estate", "hall", "winery"}
	atmospheres = []string{"elegant", "rustic", "modern", "classic", "romantic"}
	cities      = []string{"Madrid", "Sevilla", "Valencia", "Barcelona", "Granada", "Bilbao"}

	cateringNames = []string{"Sabores Catering", "La Mesa Dorada", "Gusto Events", "Delicia Gourmet", "Banquetes Real", "Cocina Viva"}
	mealTypes     = []string{"buffet", "plated", "cocktail", "family-style", "stations"}
	dietary       = []string{"vegan", "vegetarian", "gluten-free", "halal", "kosher", "dairy-free"}
	cuisines      = []string{"mediterranean", "spanish", "fusion", "french", "italian"}

	decorNames    = []string{"Flor y Forma", "Atelier Blanc", "Decora Eventos", "Petalos Studio", "Ambiente Design"}
	serviceLevels = []string{"Full-Service Floral Design", "Day-of Setup", "Consultation Only", "A La Carte"}
	arrangements  = []string{"Bouquets", "Centerpieces", "Ceremony decor", "Arch flowers", "Table runners", "Boutonnieres"}
	rentals       = []string{"arches", "candelabras", "vases", "linens", "lighting", "lounge furniture"}
)

func pick(rng *rand.Rand, options []string) string {
	return options[rng.Intn(len(options))]
}

func pickN(rng *rand.Rand, options []string, n int) []any {
	perm := rng.Perm(len(options))
	if n > len(options) {
		n = len(options)
	}
	out := make([]any, 0, n)
	for _, i := range perm[:n] {
		out = append(out, options[i])
	}
	return out
}

func fabricateVenue(url string, rng *rand.Rand) graph.Record {
	name := fmt.Sprintf("%s %d", pick(rng, venueNames), rng.Intn(90)+10)
	return graph.Record{
		URL:  url,
		Name: name,
		Data: types.Value{
			"name":       name,
			"capacity":   50 + rng.Intn(451), // 50..500
			"venue_type": pick(rng, venueTypes),
			"atmosphere": pick(rng, atmospheres),
			"location":   pick(rng, cities),
			"price": map[string]any{
				"space_rental": 2000 + rng.Intn(16001), // 2000..18000
				"per_person":   30 + rng.Intn(121),
			},
			"services":         pickN(rng, []string{"bar", "parking", "catering kitchen", "bridal suite", "av equipment", "accommodation"}, 3),
			"supported_events": pickN(rng, []string{"wedding", "corporate", "banquet", "conference"}, 2),
		},
	}
}

func fabricateCatering(url string, rng *rand.Rand) graph.Record {
	name := fmt.Sprintf("%s %d", pick(rng, cateringNames), rng.Intn(90)+10)
	return graph.Record{
		URL:  url,
		Name: name,
		Data: types.Value{
			"name":            name,
			"location":        pick(rng, cities),
			"meal_types":      pickN(rng, mealTypes, 2+rng.Intn(3)),
			"dietary_options": pickN(rng, dietary, 2+rng.Intn(4)),
			"cuisines":        pickN(rng, cuisines, 2),
			"services":        pickN(rng, []string{"waitstaff", "bar service", "tasting", "rentals", "cake"}, 3),
			"price": map[string]any{
				"per_person": 40 + rng.Intn(161), // 40..200
				"minimum":    1500 + rng.Intn(3501),
			},
		},
	}
}

func fabricateDecor(url string, rng *rand.Rand) graph.Record {
	name := fmt.Sprintf("%s %d", pick(rng, decorNames), rng.Intn(90)+10)
	return graph.Record{
		URL:  url,
		Name: name,
		Data: types.Value{
			"name":                name,
			"location":            pick(rng, cities),
			"service_levels":      pickN(rng, serviceLevels, 1+rng.Intn(3)),
			"floral_arrangements": pickN(rng, arrangements, 3+rng.Intn(3)),
			"rentals":             pickN(rng, rentals, 2+rng.Intn(3)),
			"styles":              pick(rng, []string{"classic", "modern", "rustic", "luxury"}),
			"price": map[string]any{
				"base_package": 1500 + rng.Intn(18501), // 1500..20000
			},
		},
	}
}
