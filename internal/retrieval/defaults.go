package retrieval

import "gala/internal/types"

// Compiled-in pattern rows. These are the curated baseline the planner works
// from before any operator edits the JSON files; persisted rows are appended
// on top and win ties by specificity, not position.

var defaultPatterns = map[types.Category][]Pattern{
	types.CategoryVenue: {
		{
			Style:       "rustic",
			VenueTypes:  []string{"Barn", "Farm", "Vineyard", "Garden"},
			Atmospheres: []string{"rustic", "outdoor", "intimate", "natural"},
		},
		{
			Style:       "elegant",
			VenueTypes:  []string{"Ballroom", "Mansion", "Historic Estate", "Hotel"},
			Atmospheres: []string{"elegant", "luxurious", "formal", "classic"},
		},
		{
			Style:       "modern",
			VenueTypes:  []string{"Loft", "Gallery", "Rooftop", "Industrial Space"},
			Atmospheres: []string{"modern", "minimalist", "urban", "chic"},
		},
		{
			Style:       "classic",
			VenueTypes:  []string{"Ballroom", "Hotel", "Country Club", "Garden"},
			Atmospheres: []string{"classic", "timeless", "elegant"},
		},
		{
			Style:       "beach",
			VenueTypes:  []string{"Beach Club", "Resort", "Waterfront Pavilion"},
			Atmospheres: []string{"coastal", "relaxed", "outdoor"},
		},
		// Large guest lists need venues that advertise scale regardless of style.
		{
			MinGuests:   200,
			VenueTypes:  []string{"Convention Hall", "Grand Ballroom", "Estate"},
			Atmospheres: []string{"spacious", "grand"},
		},
	},
	types.CategoryCatering: {
		{
			Style:     "rustic",
			Courses:   []string{"family-style mains", "farm-to-table starters", "pie bar"},
			MealTypes: []string{"Family Style", "Buffet", "BBQ"},
			Dietary:   []string{"vegetarian", "gluten-free"},
		},
		{
			Style:     "elegant",
			Courses:   []string{"amuse-bouche", "plated five-course dinner", "petit fours"},
			MealTypes: []string{"Plated", "Seated Dinner"},
			Dietary:   []string{"vegetarian", "vegan", "gluten-free"},
		},
		{
			Style:     "modern",
			Courses:   []string{"tasting stations", "fusion small plates", "dessert wall"},
			MealTypes: []string{"Stations", "Cocktail Reception"},
			Dietary:   []string{"vegan", "gluten-free", "dairy-free"},
		},
		{
			Style:     "classic",
			Courses:   []string{"plated three-course dinner", "champagne toast", "wedding cake"},
			MealTypes: []string{"Plated", "Buffet"},
			Dietary:   []string{"vegetarian"},
		},
		// Buffets and stations scale better than plated service past ~150 covers.
		{
			MinGuests: 150,
			Courses:   []string{"buffet mains", "carving stations"},
			MealTypes: []string{"Buffet", "Stations"},
		},
	},
	types.CategoryDecor: {
		{
			Style:         "rustic",
			ServiceLevels: []string{"Partial Styling", "Day-of Setup"},
			Arrangements:  []string{"Wildflower Centerpieces", "Greenery Garlands", "Mason Jar Arrangements"},
			Rentals:       []string{"wooden arches", "string lights", "lanterns"},
		},
		{
			Style:         "elegant",
			ServiceLevels: []string{"Full-Service Floral Design", "Event Styling"},
			Arrangements:  []string{"Bouquets", "Tall Centerpieces", "Ceremony decor", "Floral Installations"},
			Rentals:       []string{"candelabras", "chiavari chairs", "drapery"},
		},
		{
			Style:         "modern",
			ServiceLevels: []string{"Full-Service Floral Design", "Partial Styling"},
			Arrangements:  []string{"Sculptural Centerpieces", "Monochrome Bouquets", "Installation Pieces"},
			Rentals:       []string{"acrylic stands", "geometric arches", "uplighting"},
		},
		{
			Style:         "classic",
			ServiceLevels: []string{"Full-Service Floral Design"},
			Arrangements:  []string{"Bouquets", "Centerpieces", "Ceremony decor"},
			Rentals:       []string{"aisle runners", "arch rentals"},
		},
	},
}

// defaultBudgetSplits seeds the annealer. The empty-style row is the balanced
// fallback used when no style matches.
var defaultBudgetSplits = []BudgetRecommendation{
	{Style: "", Split: map[types.Category]float64{
		types.CategoryVenue: 0.40, types.CategoryCatering: 0.35, types.CategoryDecor: 0.25,
	}},
	{Style: "elegant", Split: map[types.Category]float64{
		types.CategoryVenue: 0.45, types.CategoryCatering: 0.32, types.CategoryDecor: 0.23,
	}},
	{Style: "rustic", Split: map[types.Category]float64{
		types.CategoryVenue: 0.42, types.CategoryCatering: 0.36, types.CategoryDecor: 0.22,
	}},
	{Style: "modern", Split: map[types.Category]float64{
		types.CategoryVenue: 0.38, types.CategoryCatering: 0.34, types.CategoryDecor: 0.28,
	}},
}
