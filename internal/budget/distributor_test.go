package budget

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gala/internal/config"
	"gala/internal/graph"
	"gala/internal/llm"
	"gala/internal/memory"
	"gala/internal/retrieval"
	"gala/internal/types"
)

func testDistributor(t *testing.T, seed int64) *Distributor {
	t.Helper()
	dir := t.TempDir()
	return New(
		config.DefaultBudgetConfig(),
		llm.NewSimulated(seed),
		5*time.Second,
		memory.NewPrefsStore(dir),
		retrieval.NewStore(dir),
		nil,
		seed,
	)
}

func sum(m map[types.Category]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

func TestDistributeZeroBudgetReturnsZeros(t *testing.T) {
	d := testDistributor(t, 7)
	out, err := d.Distribute(context.Background(), "user-1", 0, "classic wedding")
	require.NoError(t, err)
	for _, cat := range types.Categories() {
		assert.Equal(t, 0, out[cat])
	}
}

func TestDistributeNegativeBudgetIsAnError(t *testing.T) {
	d := testDistributor(t, 7)
	_, err := d.Distribute(context.Background(), "user-1", -100, "wedding")
	assert.Error(t, err)
}

func TestDistributeSumsExactlyToTotal(t *testing.T) {
	d := testDistributor(t, 42)
	out, err := d.Distribute(context.Background(), "user-1", 20000, "elegant wedding for 120 guests")
	require.NoError(t, err)
	assert.Equal(t, 20000, sum(out))
	for cat, amount := range out {
		assert.GreaterOrEqual(t, amount, 0, "category %s", cat)
	}
}

func TestDistributeIsDeterministicForASeed(t *testing.T) {
	a := testDistributor(t, 99)
	b := testDistributor(t, 99)

	first, err := a.Distribute(context.Background(), "user-1", 15000, "rustic barn wedding")
	require.NoError(t, err)
	second, err := b.Distribute(context.Background(), "user-1", 15000, "rustic barn wedding")
	require.NoError(t, err)

	for _, cat := range types.Categories() {
		assert.Equal(t, first[cat], second[cat], "category %s replay drift", cat)
	}
}

func TestDistributeStaysWithinGraphBounds(t *testing.T) {
	prices := map[types.Category][2]int{
		types.CategoryVenue:    {3000, 9000},
		types.CategoryCatering: {4800, 24000},
		types.CategoryDecor:    {1500, 20000},
	}
	graphs := make(map[types.Category]*graph.Graph, len(prices))
	for cat, p := range prices {
		g := graph.New(cat)
		g.Insert(graph.Record{URL: "https://x.example/" + string(cat) + "/lo", Name: "Low " + string(cat), Data: types.Value{"price": p[0], "location": "A"}})
		g.Insert(graph.Record{URL: "https://x.example/" + string(cat) + "/hi", Name: "High " + string(cat), Data: types.Value{"price": p[1], "location": "B"}})
		graphs[cat] = g
	}

	dir := t.TempDir()
	d := New(config.DefaultBudgetConfig(), nil, time.Second, memory.NewPrefsStore(dir), retrieval.NewStore(dir),
		func(cat types.Category) *graph.Graph { return graphs[cat] }, 11)

	out, err := d.Distribute(context.Background(), "user-1", 30000, "classic wedding")
	require.NoError(t, err)
	assert.Equal(t, 30000, sum(out))
	for cat, p := range prices {
		assert.GreaterOrEqual(t, out[cat], p[0], "category %s below its observed minimum", cat)
		assert.LessOrEqual(t, out[cat], p[1], "category %s above its observed maximum", cat)
	}
}

func TestDistributeReactsToDescriptionWeights(t *testing.T) {
	d := testDistributor(t, 5)
	out, err := d.Distribute(context.Background(), "user-food", 30000, "the food is everything, gourmet dinner focus")
	require.NoError(t, err)
	assert.Greater(t, out[types.CategoryCatering], out[types.CategoryDecor],
		"food-focused description should favor catering over decor")
}

func TestDistributeWithoutLLMUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	d := New(config.DefaultBudgetConfig(), nil, time.Second, memory.NewPrefsStore(dir), retrieval.NewStore(dir), nil, 1)

	out, err := d.Distribute(context.Background(), "user-1", 10000, "wedding")
	require.NoError(t, err)
	assert.Equal(t, 10000, sum(out))
	assert.Greater(t, out[types.CategoryVenue], out[types.CategoryDecor],
		"default weights put venue above decor")
}

func TestDistributePersistsUserWeights(t *testing.T) {
	dir := t.TempDir()
	prefs := memory.NewPrefsStore(dir)
	d := New(config.DefaultBudgetConfig(), llm.NewSimulated(3), time.Second, prefs, retrieval.NewStore(dir), nil, 3)

	_, err := d.Distribute(context.Background(), "user-1", 12000, "classic wedding")
	require.NoError(t, err)

	w, ok := prefs.Get("user-1")
	require.True(t, ok)
	total := 0.0
	for _, f := range w {
		total += f
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestBoundsFromGraphs(t *testing.T) {
	g := graph.New(types.CategoryVenue)
	g.Insert(graph.Record{URL: "https://a.example/1", Name: "Cheap Hall", Data: types.Value{"capacity": 80, "price": 3000, "location": "A"}})
	g.Insert(graph.Record{URL: "https://a.example/2", Name: "Grand Hall", Data: types.Value{"capacity": 300, "price": 9000, "location": "B"}})

	dir := t.TempDir()
	d := New(config.DefaultBudgetConfig(), nil, time.Second, memory.NewPrefsStore(dir), retrieval.NewStore(dir),
		func(cat types.Category) *graph.Graph {
			if cat == types.CategoryVenue {
				return g
			}
			return nil
		}, 1)

	b := d.scanBounds()
	assert.True(t, b[types.CategoryVenue].known)
	assert.InDelta(t, 3000, b[types.CategoryVenue].min, 1e-9)
	assert.False(t, b[types.CategoryCatering].known)

	min, max, mean, ok := d.priceStats(types.CategoryVenue)
	require.True(t, ok)
	assert.InDelta(t, 3000, min, 1e-9)
	assert.InDelta(t, 9000, max, 1e-9)
	assert.InDelta(t, 6000, mean, 1e-9)
}

func TestKendallConcordance(t *testing.T) {
	same := map[types.Category]float64{types.CategoryVenue: 0.5, types.CategoryCatering: 0.3, types.CategoryDecor: 0.2}
	assert.InDelta(t, 1.0, kendallConcordance(same, same), 1e-9)

	reversed := map[types.Category]float64{types.CategoryVenue: 0.2, types.CategoryCatering: 0.3, types.CategoryDecor: 0.5}
	assert.InDelta(t, 0.0, kendallConcordance(same, reversed), 1e-9)

	partial := map[types.Category]float64{types.CategoryVenue: 0.5, types.CategoryCatering: 0.2, types.CategoryDecor: 0.3}
	c := kendallConcordance(same, partial)
	assert.Greater(t, c, 0.0)
	assert.Less(t, c, 1.0)
}

func TestRoundSplitResidueGoesToHeaviest(t *testing.T) {
	weights := map[types.Category]float64{
		types.CategoryVenue: 0.5, types.CategoryCatering: 0.3, types.CategoryDecor: 0.2,
	}
	s := map[types.Category]float64{
		types.CategoryVenue: 4999.4, types.CategoryCatering: 3000.3, types.CategoryDecor: 1999.3,
	}
	out := roundSplit(s, weights, map[types.Category]bounds{}, 10000)
	assert.Equal(t, 10000, sum(out))
	assert.Equal(t, 5001, out[types.CategoryVenue], "floors plus residue to heaviest")
}

func TestRoundSplitResidueRespectsBounds(t *testing.T) {
	weights := map[types.Category]float64{
		types.CategoryVenue: 0.5, types.CategoryCatering: 0.3, types.CategoryDecor: 0.2,
	}
	bound := map[types.Category]bounds{
		types.CategoryVenue: {min: 3000, max: 9000, known: true},
	}
	s := map[types.Category]float64{
		types.CategoryVenue: 8999.7, types.CategoryCatering: 13500.6, types.CategoryDecor: 7499.7,
	}
	out := roundSplit(s, weights, bound, 30000)
	assert.Equal(t, 30000, sum(out))
	assert.LessOrEqual(t, out[types.CategoryVenue], 9000, "residue must not push venue over its max")
}

func TestProportionalSplit(t *testing.T) {
	weights := map[types.Category]float64{
		types.CategoryVenue: 0.4, types.CategoryCatering: 0.35, types.CategoryDecor: 0.25,
	}
	out := proportionalSplit(weights, 9999)
	assert.Equal(t, 9999, sum(out))
}

func TestStyleFromDescription(t *testing.T) {
	assert.Equal(t, "rustic", styleFromDescription("A rustic barn celebration"))
	assert.Equal(t, "elegant", styleFromDescription("Elegant evening affair"))
	assert.Equal(t, "", styleFromDescription("just a party"))
}

func TestDistributePropertyHolds(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 30
	params.Rng.Seed(1234)
	properties := gopter.NewProperties(params)

	properties.Property("split sums to total with non-negative amounts", prop.ForAll(
		func(total int, seed int64) bool {
			dir := t.TempDir()
			d := New(config.DefaultBudgetConfig(), llm.NewSimulated(seed), time.Second,
				memory.NewPrefsStore(dir), retrieval.NewStore(dir), nil, seed)
			out, err := d.Distribute(context.Background(), "prop-user", total, "classic wedding")
			if err != nil {
				return false
			}
			if sum(out) != total {
				return false
			}
			for _, amount := range out {
				if amount < 0 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 100000),
		gen.Int64Range(1, 1<<30),
	))

	properties.TestingRun(t)
}
