package agents

import "gala/internal/types"

// =============================================================================
// SCORING DATA
// =============================================================================

// scoreWeights are the four scoring components. They sum to 1.0 per worker.
type scoreWeights struct {
	Optional  float64 // fraction of optional fields present
	Inference float64 // data-driven fit heuristics
	Style     float64 // alignment with style vocabulary
	Bonus     float64 // premium/quality/variety signals
}

// scoringTable is a worker's configuration data: which words signal quality,
// and which style vocabularies apply.
type scoringTable struct {
	weights      scoreWeights
	bonusSignals []string
	// styleTerms maps a style name to the vocabulary the worker aligns
	// candidates against (on top of the retrieval suggestion).
	styleTerms map[string][]string
	// alignFields are the data fields scanned for style vocabulary.
	alignFields []string
}

var venueTable = scoringTable{
	weights:      scoreWeights{Optional: 0.30, Inference: 0.20, Style: 0.40, Bonus: 0.10},
	bonusSignals: []string{"award", "exclusive", "premium", "historic", "panoramic", "landmark"},
	styleTerms: map[string][]string{
		"rustic":  {"barn", "farm", "vineyard", "garden", "rustic", "outdoor"},
		"elegant": {"ballroom", "mansion", "estate", "elegant", "luxurious", "formal"},
		"modern":  {"loft", "gallery", "rooftop", "industrial", "modern", "minimalist"},
		"classic": {"ballroom", "hotel", "country club", "garden", "classic", "timeless"},
		"beach":   {"beach", "resort", "waterfront", "coastal"},
	},
	alignFields: []string{"venue_type", "atmosphere", "services"},
}

var cateringTable = scoringTable{
	weights:      scoreWeights{Optional: 0.30, Inference: 0.20, Style: 0.40, Bonus: 0.10},
	bonusSignals: []string{"chef", "gourmet", "michelin", "artisan", "organic", "award"},
	styleTerms: map[string][]string{
		"standard": {"buffet", "family style", "three-course"},
		"premium":  {"plated", "tasting", "gourmet", "wine pairing"},
		"buffet":   {"buffet", "stations", "carving"},
		"formal":   {"plated", "seated dinner", "five-course", "white glove"},
		// Event styles map onto service styles for alignment.
		"rustic":  {"family style", "bbq", "farm-to-table", "buffet"},
		"elegant": {"plated", "five-course", "champagne", "gourmet"},
		"modern":  {"stations", "fusion", "small plates", "cocktail"},
		"classic": {"plated", "buffet", "three-course", "wedding cake"},
	},
	alignFields: []string{"meal_types", "cuisines", "services", "dietary_options"},
}

var decorTable = scoringTable{
	weights:      scoreWeights{Optional: 0.30, Inference: 0.20, Style: 0.40, Bonus: 0.10},
	bonusSignals: []string{"bespoke", "designer", "custom", "luxury", "award"},
	styleTerms: map[string][]string{
		"classic": {"bouquets", "centerpieces", "ceremony decor", "roses"},
		"modern":  {"sculptural", "monochrome", "installation", "geometric", "acrylic"},
		"rustic":  {"wildflower", "greenery", "mason jar", "lanterns", "wooden"},
		"luxury":  {"floral installations", "candelabras", "drapery", "full-service floral design"},
		"elegant": {"floral installations", "tall centerpieces", "candelabras", "full-service floral design"},
	},
	alignFields: []string{"service_levels", "floral_arrangements", "styles", "rentals"},
}

func tableFor(category types.Category) scoringTable {
	switch category {
	case types.CategoryVenue:
		return venueTable
	case types.CategoryCatering:
		return cateringTable
	case types.CategoryDecor:
		return decorTable
	}
	return scoringTable{weights: scoreWeights{Optional: 0.30, Inference: 0.20, Style: 0.40, Bonus: 0.10}}
}

// dietaryCanonical is the catering worker's dietary normalization target set.
var dietaryCanonical = []string{"vegetarian", "vegan", "gluten-free", "dairy-free", "halal", "kosher"}

// normalizeDietary folds request dietary terms onto the canonical set,
// dropping anything unrecognized.
func normalizeDietary(terms []string) []string {
	var out []string
	for _, t := range normalizeTerms(terms) {
		for _, c := range dietaryCanonical {
			if t == c {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
