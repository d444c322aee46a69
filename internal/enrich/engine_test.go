package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gala/internal/graph"
	"gala/internal/llm"
	"gala/internal/quality"
	"gala/internal/types"
)

const venuePage = `<!doctype html>
<html><head><title>Villa Rosa</title></head>
<body><article>
<h1>Villa Rosa</h1>
<p>A historic estate for weddings and banquets with gardens and terraces overlooking the valley.
The estate offers several reception halls, a private chapel, and accommodation for the wedding party.
Our events team handles every detail from the first visit to the last dance.</p>
<p>Location: Calle Mayor 12, Sevilla</p>
<p>Rental price from $4,500 per event. Capacity: 180 guests.</p>
</article></body></html>`

func testEngine(t *testing.T, search llm.SearchClient) *Engine {
	t.Helper()
	return New(
		quality.New(quality.DefaultThresholds()),
		NewFetcher(5*time.Second, ""),
		llm.NewSimulated(1),
		search,
		nil,
		Options{FetchTimeout: 5 * time.Second, LLMTimeout: 5 * time.Second},
	)
}

func TestEnrichLiftsQualityFromPrimarySource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(venuePage))
	}))
	defer srv.Close()

	g := graph.New(types.CategoryVenue)
	id := g.Insert(graph.Record{
		URL:  srv.URL + "/villa-rosa",
		Name: "Villa Rosa",
		Data: types.Value{"capacity": 180},
	})

	e := testEngine(t, nil)
	before := quality.New(quality.DefaultThresholds()).Validate(mustGet(t, g, id), types.CategoryVenue)
	require.NotEmpty(t, before.MissingFields)

	out, err := e.Enrich(context.Background(), g, id)
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.GreaterOrEqual(t, out.After.OverallScore, out.Before.OverallScore+0.10)
	assert.Less(t, len(out.After.MissingFields), len(out.Before.MissingFields))

	node := mustGet(t, g, id)
	assert.Equal(t, "Calle Mayor 12, Sevilla", node.OriginalData.String("location"))
	_, hasPrice := types.NormalizePrice(node.OriginalData["price"])
	assert.True(t, hasPrice)
}

func TestEnrichIsIdempotentOnCompleteFreshNodes(t *testing.T) {
	g := graph.New(types.CategoryVenue)
	id := g.Insert(graph.Record{
		URL:  "https://example.com/complete",
		Name: "Complete Venue",
		Data: types.Value{
			"capacity": 120,
			"price":    5000,
			"location": "Madrid",
		},
	})

	e := testEngine(t, nil)
	out, err := e.Enrich(context.Background(), g, id)
	require.NoError(t, err)
	assert.False(t, out.Applied)

	node := mustGet(t, g, id)
	ts := node.Timestamp
	out, err = e.Enrich(context.Background(), g, id)
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, ts, mustGet(t, g, id).Timestamp)
}

func TestEnrichSwallowsFetchFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	g := graph.New(types.CategoryVenue)
	id := g.Insert(graph.Record{
		URL:  srv.URL + "/dead",
		Name: "x", // too short for the secondary source
		Data: types.Value{"capacity": 50},
	})

	e := testEngine(t, llm.NewSimulatedSearch(1))
	out, err := e.Enrich(context.Background(), g, id)
	require.NoError(t, err, "source failures must not fail enrichment")
	assert.False(t, out.Applied)
	assert.Equal(t, out.Before.OverallScore, out.After.OverallScore)
}

func TestEnrichFallsBackToSecondarySource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	g := graph.New(types.CategoryVenue)
	id := g.Insert(graph.Record{
		URL:  srv.URL + "/venue",
		Name: "Gran Hotel Central",
		Data: types.Value{"capacity": 200},
	})

	e := testEngine(t, llm.NewSimulatedSearch(1))
	out, err := e.Enrich(context.Background(), g, id)
	require.NoError(t, err)
	assert.True(t, out.Applied, "secondary source should recover fields")
	node := mustGet(t, g, id)
	assert.True(t, node.OriginalData.Has("location") || node.OriginalData.Has("price"))
}

func TestUsableName(t *testing.T) {
	assert.True(t, usableName("Villa Rosa"))
	assert.False(t, usableName(""))
	assert.False(t, usableName("ab"))
	assert.False(t, usableName("Unknown"))
	assert.False(t, usableName("ERROR"))
	assert.False(t, usableName("12345"))
}

func TestRetroBatchEnrichesOnlyLowQualityNodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(venuePage))
	}))
	defer srv.Close()

	g := graph.New(types.CategoryVenue)
	// Complete node: not eligible.
	g.Insert(graph.Record{
		URL:  srv.URL + "/complete",
		Name: "Complete Venue",
		Data: types.Value{"capacity": 120, "price": 5000, "location": "Madrid"},
	})
	// Sparse and stale node: eligible and repairable from the served page.
	sparse := g.Insert(graph.Record{
		URL:  srv.URL + "/sparse",
		Name: "Villa Rosa",
		Data: types.Value{},
	})
	mustGet(t, g, sparse).Timestamp = time.Now().UTC().Add(-120 * 24 * time.Hour)

	e := testEngine(t, nil)
	res, err := e.RetroBatch(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 1, res.Eligible)
	assert.Equal(t, 1, res.Improved)

	node := mustGet(t, g, sparse)
	assert.NotEmpty(t, node.OriginalData.String("location"))
}

func TestRetroBatchRollsBackMarginalGains(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(venuePage))
	}))
	defer srv.Close()

	g := graph.New(types.CategoryVenue)
	sparse := g.Insert(graph.Record{
		URL:  srv.URL + "/sparse",
		Name: "Villa Rosa",
		Data: types.Value{},
	})
	stale := time.Now().UTC().Add(-120 * 24 * time.Hour)
	mustGet(t, g, sparse).Timestamp = stale

	// A threshold no single sweep can reach, so every applied update must
	// be rolled back.
	e := New(
		quality.New(quality.DefaultThresholds()),
		NewFetcher(5*time.Second, ""),
		llm.NewSimulated(1),
		nil,
		nil,
		Options{FetchTimeout: 5 * time.Second, LLMTimeout: 5 * time.Second, MinImprovement: 0.99},
	)

	res, err := e.RetroBatch(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Eligible)
	assert.Equal(t, 0, res.Improved)

	node := mustGet(t, g, sparse)
	assert.Empty(t, node.OriginalData, "marginal enrichment must not stick")
	assert.Equal(t, stale, node.Timestamp, "rollback restores the pre-sweep timestamp")
}

func TestExtractionPromptEnumeratesShape(t *testing.T) {
	p := extractionPrompt("Villa Rosa", types.CategoryVenue, []string{"location", "price"}, "page text")
	assert.Contains(t, p, `"location": "..."`)
	assert.Contains(t, p, `"price": 0`)
	assert.Contains(t, p, "missing fields")
	assert.Contains(t, p, "page text")
}

func mustGet(t *testing.T, g *graph.Graph, id string) *graph.Node {
	t.Helper()
	n, ok := g.Get(id)
	require.True(t, ok)
	return n
}
