package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gala/internal/config"
	"gala/internal/crawler"
	"gala/internal/graph"
	"gala/internal/retrieval"
	"gala/internal/types"
)

func venueGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New(types.CategoryVenue)
	g.Insert(graph.Record{
		URL:  "https://venues.example/barn",
		Name: "Old Oak Barn",
		Data: types.Value{
			"capacity":   150,
			"price":      types.Value{"space_rental": 4000},
			"location":   "Valley Road 3",
			"venue_type": "Barn",
			"atmosphere": []string{"rustic", "outdoor"},
		},
	})
	g.Insert(graph.Record{
		URL:  "https://venues.example/ballroom",
		Name: "Crystal Ballroom",
		Data: types.Value{
			"capacity":   400,
			"price":      types.Value{"space_rental": 12000},
			"location":   "Center Plaza 1",
			"venue_type": "Ballroom",
			"atmosphere": []string{"elegant", "formal"},
		},
	})
	g.Insert(graph.Record{
		URL:  "https://venues.example/loft",
		Name: "Harbor Loft",
		Data: types.Value{
			"capacity":   90,
			"price":      types.Value{"space_rental": 6000},
			"location":   "Dock Street 9",
			"venue_type": "Loft",
			"atmosphere": []string{"modern", "urban"},
		},
	})
	return g
}

func testWorker(t *testing.T, g *graph.Graph) *Worker {
	t.Helper()
	return NewWorker(g.Category(), config.DefaultWorkersConfig(), g, "", nil, nil, retrieval.NewStore(t.TempDir()))
}

func TestSearchEnforcesMandatoryPredicates(t *testing.T) {
	w := testWorker(t, venueGraph(t))

	out, err := w.Search(context.Background(), Request{
		Budget:     8000,
		GuestCount: 120,
		Mandatory:  types.Value{"capacity": 120},
	})
	require.NoError(t, err)
	require.NotEmpty(t, out)
	for _, cand := range out {
		assert.GreaterOrEqual(t, cand.Capacity, 120, "%s below required capacity", cand.Name)
		assert.LessOrEqual(t, cand.Price, 8000.0, "%s over budget", cand.Name)
	}
	// The ballroom holds 400 but costs 12000: filtered by budget.
	for _, cand := range out {
		assert.NotEqual(t, "Crystal Ballroom", cand.Name)
	}
}

func TestSearchEmptyResultIsValid(t *testing.T) {
	w := testWorker(t, venueGraph(t))
	out, err := w.Search(context.Background(), Request{
		Budget:    8000,
		Mandatory: types.Value{"capacity": 5000},
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSearchStyleAlignmentRanksFirst(t *testing.T) {
	w := testWorker(t, venueGraph(t))
	out, err := w.Search(context.Background(), Request{
		Budget:     15000,
		GuestCount: 120,
		Style:      "rustic",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, "Old Oak Barn", out[0].Name, "rustic style should surface the barn")
	for i := 1; i < len(out); i++ {
		assert.LessOrEqual(t, out[i].Score, out[i-1].Score, "ranking must be descending")
	}
}

func TestSearchSynonymMatching(t *testing.T) {
	g := graph.New(types.CategoryCatering)
	g.Insert(graph.Record{
		URL:  "https://caterers.example/fine",
		Name: "Fine Dining Co",
		Data: types.Value{
			"price":      types.Value{"per_person": 90},
			"location":   "Main St 5",
			"services":   []string{"full service"},
			"meal_types": []string{"Seated Dinner"},
		},
	})
	w := testWorker(t, g)

	out, err := w.Search(context.Background(), Request{
		Budget:    20000,
		Mandatory: types.Value{"meal_types": []string{"plated"}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1, "seated dinner must satisfy a plated requirement")
	assert.Equal(t, "Fine Dining Co", out[0].Name)
}

func TestSearchCoverageDrivesCrawler(t *testing.T) {
	dir := t.TempDir()
	g := graph.New(types.CategoryDecor)
	cr := crawler.New(config.CrawlerConfig{Backend: "simulated", VisitLimit: 10}, 42)
	w := NewWorker(types.CategoryDecor, config.DefaultWorkersConfig(), g, dir, cr, nil, retrieval.NewStore(t.TempDir()))

	out, err := w.Search(context.Background(), Request{Budget: 50000})
	require.NoError(t, err)
	assert.NotEmpty(t, out, "crawler should have filled the empty graph")
	assert.Greater(t, g.Count(), 0)

	// Coverage persists the grown graph.
	loaded := graph.Load(dir, types.CategoryDecor)
	assert.Equal(t, g.Count(), loaded.Count())
}

func TestCorrectionKnobs(t *testing.T) {
	base := Request{Budget: 1000, Mandatory: types.Value{"capacity": 100}}

	relaxed := Request{Budget: 1000, Mandatory: types.Value{"capacity": 100}, RelaxFactor: 0.8}.applyCorrections()
	need, ok := relaxed.Mandatory.Float("capacity")
	require.True(t, ok)
	assert.InDelta(t, 80, need, 1e-9)

	bumped := Request{Budget: 1000, BudgetIncrease: 0.2}.applyCorrections()
	assert.InDelta(t, 1200, bumped.Budget, 1e-9)

	alt := Request{Budget: 1000, Mandatory: types.Value{"capacity": 100}, UseAlternatives: true}.applyCorrections()
	assert.Nil(t, alt.Mandatory)

	// Untouched request stays as-is.
	same := base.applyCorrections()
	assert.Equal(t, base.Budget, same.Budget)
}

func TestRequestParamsRoundTrip(t *testing.T) {
	req := Request{
		UserID:     "user-1",
		Budget:     7500,
		GuestCount: 140,
		Style:      "modern",
		Mandatory:  types.Value{"capacity": 140},
		Optional:   []string{"parking"},
		Keywords:   []string{"rooftop"},
		SeedURLs:   []string{"https://venues.example/loft"},
	}
	got := ParseRequest(req.Params())
	assert.Equal(t, req.UserID, got.UserID)
	assert.InDelta(t, req.Budget, got.Budget, 1e-9)
	assert.Equal(t, req.GuestCount, got.GuestCount)
	assert.Equal(t, req.Style, got.Style)
	assert.Equal(t, req.Optional, got.Optional)
	assert.Equal(t, req.SeedURLs, got.SeedURLs)
	need, ok := got.Mandatory.Float("capacity")
	require.True(t, ok)
	assert.InDelta(t, 140, need, 1e-9)
}

func TestHandlerRepliesWithCandidates(t *testing.T) {
	w := testWorker(t, venueGraph(t))
	handler := w.Handler()

	task := types.NewMessage(types.EndpointPlanner, "venue", "sess-1", types.TaskBody{
		TaskID: "task-1",
		Type:   types.TaskVenueSearch,
		Params: Request{Budget: 15000, GuestCount: 100}.Params(),
	})
	reply := handler(task)
	require.NotNil(t, reply)
	body, ok := reply.Body.(types.ResponseBody)
	require.True(t, ok)
	assert.Equal(t, "task-1", body.TaskID)
	candidates, ok := body.Result.([]types.Candidate)
	require.True(t, ok)
	assert.NotEmpty(t, candidates)
}

func TestHandlerSearchesSharedDataGraph(t *testing.T) {
	w := testWorker(t, venueGraph(t))

	shared := graph.New(types.CategoryVenue)
	shared.Insert(graph.Record{
		URL:  "https://venues.example/shared",
		Name: "Shared Pavilion",
		Data: types.Value{"capacity": 200, "price": 3000, "location": "Lakeside 7"},
	})

	task := types.NewMessage(types.EndpointPlanner, "venue", "sess-1", types.TaskBody{
		TaskID:    "task-3",
		Type:      types.TaskVenueSearch,
		Params:    Request{Budget: 15000, GuestCount: 100}.Params(),
		GraphData: map[string]any{types.CategoryVenue.GraphName(): shared},
	})
	reply := w.Handler()(task)
	require.NotNil(t, reply)
	body, ok := reply.Body.(types.ResponseBody)
	require.True(t, ok)
	candidates, ok := body.Result.([]types.Candidate)
	require.True(t, ok)
	require.Len(t, candidates, 1, "the snapshot graph, not the injected one, must be searched")
	assert.Equal(t, "Shared Pavilion", candidates[0].Name)
}

func TestHandlerRejectsForeignTaskType(t *testing.T) {
	w := testWorker(t, venueGraph(t))
	task := types.NewMessage(types.EndpointPlanner, "venue", "sess-1", types.TaskBody{
		TaskID: "task-2",
		Type:   types.TaskCateringSearch,
	})
	reply := w.Handler()(task)
	require.NotNil(t, reply)
	body, ok := reply.Body.(types.ErrorBody)
	require.True(t, ok)
	assert.Equal(t, "task-2", body.TaskID)
}

func TestNormalizeDietary(t *testing.T) {
	got := normalizeDietary([]string{"Plant-Based", "gluten free", "spicy"})
	assert.ElementsMatch(t, []string{"vegan", "gluten-free"}, got)
}

func TestMaxResultsCap(t *testing.T) {
	g := graph.New(types.CategoryVenue)
	for i := 0; i < 60; i++ {
		g.Insert(graph.Record{
			URL:  "https://venues.example/v" + string(rune('a'+i%26)) + string(rune('a'+i/26)),
			Name: "Venue",
			Data: types.Value{"capacity": 100, "price": 1000, "location": "X"},
		})
	}
	cfg := config.DefaultWorkersConfig()
	w := NewWorker(types.CategoryVenue, cfg, g, "", nil, nil, nil)

	out, err := w.Search(context.Background(), Request{Budget: 5000})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), cfg.MaxResults)
}
