// Package crawler ingests vendor pages into the knowledge graphs. Workers
// trigger it when a graph's coverage falls below the category threshold; it
// visits seed URLs, extracts a vendor record per page, follows outlinks up
// to the visit limit, and inserts everything through graph.Insert. Failed
// extractions insert ERROR nodes so CleanErrors can sweep them later.
package crawler

import (
	"context"
	"fmt"

	"gala/internal/config"
	"gala/internal/graph"
	"gala/internal/logging"
	"gala/internal/metrics"
	"gala/internal/types"
)

// Crawler is the ingestion surface the workers drive.
type Crawler interface {
	// Ingest visits the seed URLs (and their outlinks) for a category,
	// inserting one record per page into g. Returns the number of main
	// nodes inserted. Ingest stops at the visit limit and never fails the
	// whole run on a single bad page.
	Ingest(ctx context.Context, g *graph.Graph, category types.Category, seedURLs []string) (int, error)
}

// New builds the configured crawler backend. Unknown backends degrade to
// the simulated crawler.
func New(cfg config.CrawlerConfig, seed int64) Crawler {
	switch cfg.Backend {
	case "rod":
		return NewRod(cfg)
	case "http":
		return NewHTTP(cfg)
	case "simulated", "":
		return NewSimulated(cfg, seed)
	default:
		logging.CrawlerWarn("unknown crawler backend %q, using simulated", cfg.Backend)
		return NewSimulated(cfg, seed)
	}
}

// visitQueue is the shared breadth-first visit discipline: seeds first, then
// discovered outlinks, deduplicated on canonical URL, bounded by limit.
type visitQueue struct {
	limit   int
	queue   []string
	visited map[string]struct{}
}

func newVisitQueue(limit int, seeds []string) *visitQueue {
	q := &visitQueue{limit: limit, visited: make(map[string]struct{})}
	for _, s := range seeds {
		q.push(s)
	}
	return q
}

func (q *visitQueue) push(rawURL string) {
	id := graph.CanonicalURL(rawURL)
	if id == "" {
		return
	}
	if _, seen := q.visited[id]; seen {
		return
	}
	q.visited[id] = struct{}{}
	q.queue = append(q.queue, id)
}

func (q *visitQueue) next() (string, bool) {
	if len(q.queue) == 0 || q.limit <= 0 {
		return "", false
	}
	q.limit--
	url := q.queue[0]
	q.queue = q.queue[1:]
	return url, true
}

// ingest runs the visit loop over a page-fetching function. Both backends
// share it; only fetch differs.
func ingest(ctx context.Context, g *graph.Graph, category types.Category, seeds []string, limit int,
	fetch func(ctx context.Context, url string) (graph.Record, []string, error)) (int, error) {

	q := newVisitQueue(limit, seeds)
	inserted := 0
	for {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		url, ok := q.next()
		if !ok {
			break
		}

		rec, outlinks, err := fetch(ctx, url)
		if err != nil {
			logging.CrawlerWarn("%s: fetch %s failed: %v", category, url, err)
			g.Insert(graph.Record{URL: url, Name: graph.ErrorName, Data: types.Value{"error": err.Error()}})
			continue
		}
		g.Insert(rec)
		inserted++
		metrics.CrawlerPages.Inc()

		for _, link := range outlinks {
			q.push(link)
		}
	}

	logging.Crawler("%s: ingested %d pages from %d seeds", category, inserted, len(seeds))
	if inserted == 0 && len(seeds) > 0 {
		return 0, fmt.Errorf("crawler: no pages ingested from %d seeds", len(seeds))
	}
	return inserted, nil
}
