package crawler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gala/internal/config"
	"gala/internal/graph"
	"gala/internal/types"
)

func simCfg(limit int) config.CrawlerConfig {
	return config.CrawlerConfig{Backend: "simulated", VisitLimit: limit}
}

func TestSimulatedIngestFillsGraphUpToVisitLimit(t *testing.T) {
	c := NewSimulated(simCfg(8), 42)
	g := graph.New(types.CategoryVenue)

	n, err := c.Ingest(context.Background(), g, types.CategoryVenue, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, 8, g.Count())

	for _, node := range g.Query() {
		assert.NotEmpty(t, node.Name)
		assert.NotEqual(t, graph.ErrorName, node.Name)
		_, ok := node.OriginalData.Float("capacity")
		assert.True(t, ok, "venue %s should have capacity", node.ID)
		_, ok = types.NormalizePrice(node.OriginalData["price"])
		assert.True(t, ok, "venue %s should have a price", node.ID)
	}
}

func TestSimulatedIngestIsIdempotent(t *testing.T) {
	g := graph.New(types.CategoryCatering)
	seeds := []string{"https://catering-directory.example.com/listing/1"}

	c1 := NewSimulated(simCfg(5), 7)
	_, err := c1.Ingest(context.Background(), g, types.CategoryCatering, seeds)
	require.NoError(t, err)
	before := g.Count()

	c2 := NewSimulated(simCfg(5), 7)
	_, err = c2.Ingest(context.Background(), g, types.CategoryCatering, seeds)
	require.NoError(t, err)
	assert.Equal(t, before, g.Count(), "same seed and URLs must produce the same nodes")
}

func TestSimulatedRecordsAreCategoryComplete(t *testing.T) {
	for _, cat := range types.Categories() {
		g := graph.New(cat)
		c := NewSimulated(simCfg(6), 3)
		_, err := c.Ingest(context.Background(), g, cat, nil)
		require.NoError(t, err)
		for _, node := range g.Query() {
			assert.Equal(t, graph.Complete, node.Completeness, "%s node %s", cat, node.ID)
		}
	}
}

func TestIngestRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewSimulated(simCfg(100), 1)
	g := graph.New(types.CategoryVenue)
	_, err := c.Ingest(ctx, g, types.CategoryVenue, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVisitQueueDedupesOnCanonicalURL(t *testing.T) {
	q := newVisitQueue(10, []string{
		"https://example.com/a",
		"https://EXAMPLE.com/a/",
		"https://example.com/b",
		"not a url at all ::",
	})
	var urls []string
	for {
		u, ok := q.next()
		if !ok {
			break
		}
		urls = append(urls, u)
	}
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, urls)
}

func TestExtractRecordHeuristics(t *testing.T) {
	text := `Gran Salon is an elegant mansion for weddings.
Capacity: up to 220 guests. Rental from $6,500 per event.
Location: Paseo del Prado 1, Madrid`
	rec := extractRecord(types.CategoryVenue, "https://example.com/gran-salon", "Gran Salon", text)

	assert.Equal(t, "Gran Salon", rec.Name)
	cap, ok := rec.Data.Float("capacity")
	require.True(t, ok)
	assert.Equal(t, 220.0, cap)
	price, ok := types.NormalizePrice(rec.Data["price"])
	require.True(t, ok)
	assert.Equal(t, 6500.0, price.Min)
	assert.Equal(t, "Paseo del Prado 1, Madrid", rec.Data.String("location"))
	assert.Equal(t, "mansion", rec.Data.String("venue_type"))
}

func TestExtractRecordWithoutTitleIsErrorNode(t *testing.T) {
	rec := extractRecord(types.CategoryVenue, "https://example.com/broken", "", "")
	assert.Equal(t, graph.ErrorName, rec.Name)
}

func TestSameHostLinksFilter(t *testing.T) {
	links := sameHostLinks("https://dir.example.com/list", []string{
		"https://dir.example.com/venue/1",
		"https://other.example.com/venue/2",
		"https://dir.example.com/list", // self
		"garbage",
	})
	assert.Equal(t, []string{"https://dir.example.com/venue/1"}, links)
}
