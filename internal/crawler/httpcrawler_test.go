package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"gala/internal/config"
	"gala/internal/graph"
	"gala/internal/types"
)

func venuePage(name string, capacity int, price float64, links string) string {
	return fmt.Sprintf(`<html><head><title>%s</title></head><body>
		<h1>%s</h1>
		<p>A historic estate. Capacity up to %d guests.</p>
		<p>Packages from $%.0f</p>
		<p>Location: Valley Road 5</p>
		%s
		<script>trackVisit();</script>
	</body></html>`, name, name, capacity, price, links)
}

func TestHTTPIngestFollowsRelativeLinksOnSameHost(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		links := `<a href="/venues/2">Second venue</a>
			<a href="https://elsewhere.example.com/off-host">off host</a>
			<a href="mailto:book@estate.example">mail</a>`
		fmt.Fprint(w, venuePage("Hillside Estate", 180, 5200, links))
	})
	mux.HandleFunc("/venues/2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, venuePage("Lakeview Hall", 320, 9800, ""))
	})

	c := NewHTTP(testCrawlerCfg(10))
	g := graph.New(types.CategoryVenue)

	n, err := c.Ingest(context.Background(), g, types.CategoryVenue, []string{srv.URL + "/"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	names := make(map[string]bool)
	for _, node := range g.Query() {
		names[node.Name] = true
	}
	assert.True(t, names["Hillside Estate"])
	assert.True(t, names["Lakeview Hall"], "same-host relative link should be visited")
}

func TestHTTPIngestExtractsVendorFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, venuePage("Hillside Estate", 180, 5200, ""))
	}))
	defer srv.Close()

	c := NewHTTP(testCrawlerCfg(3))
	g := graph.New(types.CategoryVenue)

	_, err := c.Ingest(context.Background(), g, types.CategoryVenue, []string{srv.URL})
	require.NoError(t, err)

	nodes := g.Query()
	require.Len(t, nodes, 1)
	data := nodes[0].OriginalData

	capacity, ok := data.Float("capacity")
	require.True(t, ok)
	assert.Equal(t, 180.0, capacity)

	price, ok := types.NormalizePrice(data["price"])
	require.True(t, ok)
	assert.Equal(t, 5200.0, price.Min)

	assert.Contains(t, data.String("location"), "Valley Road 5")
	assert.Equal(t, "estate", data.String("venue_type"))
}

func TestHTTPIngestRecordsErrorNodeOnBadPage(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, venuePage("Hillside Estate", 180, 5200, `<a href="/gone">dead</a>`))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})

	c := NewHTTP(testCrawlerCfg(10))
	g := graph.New(types.CategoryVenue)

	n, err := c.Ingest(context.Background(), g, types.CategoryVenue, []string{srv.URL + "/ok"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, g.CleanErrors(), "failed page should leave one error node")
}

func TestHTTPIngestStopsAtVisitLimit(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		link := fmt.Sprintf(`<a href="/venues/%d">next</a>`, hits)
		fmt.Fprint(w, venuePage(fmt.Sprintf("Venue %d", hits), 100, 3000, link))
	}))
	defer srv.Close()

	c := NewHTTP(testCrawlerCfg(3))
	g := graph.New(types.CategoryVenue)

	n, err := c.Ingest(context.Background(), g, types.CategoryVenue, []string{srv.URL + "/venues/0"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, hits)
}

func TestWalkDocumentSkipsScriptText(t *testing.T) {
	_, text, links := mustWalk(t, `<html><head><title>T</title><script>var x = "hidden";</script></head>
		<body><p>visible</p><a href="/a">a</a></body></html>`)
	assert.Contains(t, text, "visible")
	assert.NotContains(t, text, "hidden")
	assert.Equal(t, []string{"/a"}, links)
}

func testCrawlerCfg(limit int) config.CrawlerConfig {
	return config.CrawlerConfig{Backend: "http", VisitLimit: limit, PageTimeout: "5s", UserAgent: "gala-test"}
}

func mustWalk(t *testing.T, page string) (title, text string, links []string) {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(page))
	require.NoError(t, err)
	return walkDocument(doc)
}
