package retrieval

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gala/internal/types"
)

func TestRecommendMatchesStyle(t *testing.T) {
	s := NewStore(t.TempDir())

	sug := s.Recommend(Context{Category: types.CategoryVenue, Style: "rustic", GuestCount: 80})
	assert.Contains(t, sug.VenueTypes, "Barn")
	assert.Contains(t, sug.Atmospheres, "rustic")

	sug = s.Recommend(Context{Category: types.CategoryCatering, Style: "elegant", GuestCount: 80})
	assert.Contains(t, sug.MealTypes, "Plated")
}

func TestRecommendPrefersGuestRangeRows(t *testing.T) {
	s := NewStore(t.TempDir())

	// A huge guest list with no style hit lands on the scale row.
	sug := s.Recommend(Context{Category: types.CategoryVenue, Style: "bohemian", GuestCount: 300})
	assert.Contains(t, sug.VenueTypes, "Convention Hall")
}

func TestRecommendFallsBackToClassic(t *testing.T) {
	s := NewStore(t.TempDir())

	sug := s.Recommend(Context{Category: types.CategoryDecor, Style: "steampunk", GuestCount: 50})
	assert.Contains(t, sug.Arrangements, "Bouquets")
	assert.Equal(t, "steampunk", sug.Style, "requested style is kept even on fallback")
}

func TestSuggestionTerms(t *testing.T) {
	sug := Suggestion{
		VenueTypes:    []string{"Barn"},
		Atmospheres:   []string{"rustic"},
		Courses:       []string{"pie bar"},
		ServiceLevels: []string{"Event Styling"},
	}
	assert.ElementsMatch(t, []string{"Barn", "rustic"}, sug.Terms(types.CategoryVenue))
	assert.Contains(t, sug.Terms(types.CategoryCatering), "pie bar")
	assert.Contains(t, sug.Terms(types.CategoryDecor), "Event Styling")
}

func TestRecommendSplit(t *testing.T) {
	s := NewStore(t.TempDir())

	split := s.RecommendSplit("elegant")
	assert.InDelta(t, 0.45, split[types.CategoryVenue], 1e-9)

	fallback := s.RecommendSplit("no-such-style")
	assert.InDelta(t, 0.40, fallback[types.CategoryVenue], 1e-9)
	sum := 0.0
	for _, f := range fallback {
		sum += f
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestUpdatePersistsAndSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	s.Update(SuccessPattern{Category: types.CategoryVenue, Style: "rustic", GuestCount: 80, Results: 12}, true)
	s.Update(SuccessPattern{Category: types.CategoryVenue, Style: "rustic", GuestCount: 200, Results: 0}, false)

	rate, ok := s.SuccessRate(types.CategoryVenue, "rustic")
	require.True(t, ok)
	assert.InDelta(t, 0.5, rate, 1e-9)

	// A fresh store over the same directory sees the log.
	s2 := NewStore(dir)
	rate, ok = s2.SuccessRate(types.CategoryVenue, "rustic")
	require.True(t, ok)
	assert.InDelta(t, 0.5, rate, 1e-9)

	_, ok = s2.SuccessRate(types.CategoryDecor, "")
	assert.False(t, ok)
}

func TestLoadIgnoresCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "venue_patterns.json"), []byte("{not json"), 0644))

	s := NewStore(dir)
	sug := s.Recommend(Context{Category: types.CategoryVenue, Style: "rustic"})
	assert.Contains(t, sug.VenueTypes, "Barn", "defaults survive a corrupt file")
}

func TestReloadPicksUpOperatorEdits(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	custom := storeFile{Patterns: []Pattern{{
		Style:      "rustic",
		MinGuests:  1,
		MaxGuests:  500,
		VenueTypes: []string{"Treehouse"},
	}}}
	data, err := json.MarshalIndent(custom, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "venue_patterns.json"), data, 0644))

	s.Reload()
	sug := s.Recommend(Context{Category: types.CategoryVenue, Style: "rustic", GuestCount: 80})
	assert.Contains(t, sug.VenueTypes, "Treehouse", "guest-ranged operator row outranks the default")
}

func TestSuggestErrorCorrectionCatalogue(t *testing.T) {
	s := NewStore(t.TempDir())

	got := s.SuggestErrorCorrection(types.TaskVenueSearch, "no results found for criteria")
	require.Len(t, got, 2)
	assert.Equal(t, "relax_constraints", got[0].Name)
	relax, ok := got[0].Params.Float("relax_factor")
	require.True(t, ok)
	assert.InDelta(t, 0.8, relax, 1e-9)
	assert.Equal(t, "budget_increase", got[1].Name)
	inc, ok := got[1].Params.Float("budget_increase")
	require.True(t, ok)
	assert.InDelta(t, 0.2, inc, 1e-9)

	got = s.SuggestErrorCorrection(types.TaskCateringSearch, "Timeout esperando respuesta")
	require.Len(t, got, 1)
	assert.Equal(t, "retry_smaller", got[0].Name)
	assert.True(t, got[0].Params.Bool("use_alternatives"))

	got = s.SuggestErrorCorrection(types.TaskDecorSearch, "constraint set unsatisfiable")
	require.Len(t, got, 1)
	assert.Equal(t, "relax_constraints", got[0].Name)

	got = s.SuggestErrorCorrection(types.TaskBudgetDistribution, "annealing diverged")
	require.Len(t, got, 1)
	assert.Equal(t, "proportional_fallback", got[0].Name)

	// Unknown search error still gets the generic relax strategy.
	got = s.SuggestErrorCorrection(types.TaskVenueSearch, "something odd")
	require.Len(t, got, 1)
	assert.Equal(t, "relax_constraints", got[0].Name)
}

func TestWriteDefaultsMaterializesFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	require.NoError(t, s.WriteDefaults())

	for _, cat := range types.Categories() {
		_, err := os.Stat(s.fileFor(cat))
		assert.NoError(t, err)
	}
	_, err := os.Stat(filepath.Join(dir, "budget_patterns.json"))
	assert.NoError(t, err)

	// Second call leaves existing files alone.
	require.NoError(t, s.WriteDefaults())
}
