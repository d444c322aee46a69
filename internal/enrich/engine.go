// Package enrich repairs low-quality knowledge-graph nodes. Given a node
// that misses critical fields or has gone stale, the engine fetches the
// node's own URL (primary source), runs an extraction prompt scoped to
// exactly the missing fields, and merges whatever comes back; fields still
// missing afterwards go through a general search (secondary source) when
// one is configured. Enrichment failures are swallowed: a node that cannot
// be repaired simply keeps its low quality score.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"gala/internal/graph"
	"gala/internal/llm"
	"gala/internal/logging"
	"gala/internal/metrics"
	"gala/internal/quality"
	"gala/internal/types"
)

// =============================================================================
// ENGINE
// =============================================================================

// Options tunes the engine.
type Options struct {
	FetchTimeout   time.Duration // primary-source page fetch bound
	LLMTimeout     time.Duration // extraction call bound
	MinImprovement float64       // retro batch keeps updates scoring this much higher
	BatchWorkers   int           // concurrent retro-batch enrichments
}

// DefaultOptions returns the reference engine tuning.
func DefaultOptions() Options {
	return Options{
		FetchTimeout:   10 * time.Second,
		LLMTimeout:     30 * time.Second,
		MinImprovement: 0.10,
		BatchWorkers:   4,
	}
}

// Recorder receives enrichment deltas. The trace store implements it; a nil
// recorder disables tracing.
type Recorder interface {
	RecordEnrichment(nodeID string, category types.Category, before, after float64, fieldsAdded []string)
}

// Engine runs the enrichment pipeline.
type Engine struct {
	validator *quality.Validator
	fetcher   *Fetcher
	llm       llm.Client
	search    llm.SearchClient // nil disables the secondary source
	recorder  Recorder         // nil disables tracing
	opts      Options
}

// New creates an engine. search and recorder may be nil.
func New(validator *quality.Validator, fetcher *Fetcher, client llm.Client, search llm.SearchClient, recorder Recorder, opts Options) *Engine {
	def := DefaultOptions()
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = def.FetchTimeout
	}
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = def.LLMTimeout
	}
	if opts.MinImprovement <= 0 {
		opts.MinImprovement = def.MinImprovement
	}
	if opts.BatchWorkers <= 0 {
		opts.BatchWorkers = def.BatchWorkers
	}
	return &Engine{
		validator: validator,
		fetcher:   fetcher,
		llm:       client,
		search:    search,
		recorder:  recorder,
		opts:      opts,
	}
}

// Outcome summarizes one enrichment run.
type Outcome struct {
	Applied     bool            // the node actually changed
	Before      quality.Report  // quality going in
	After       quality.Report  // quality coming out (== Before when skipped)
	FieldsAdded []string        // merged field names, primary + secondary
}

// Enrich repairs one node in g. Complete and fresh nodes are a no-op, which
// makes the operation idempotent. Errors from the sources are swallowed into
// a non-applied outcome; the only hard failure is a missing node.
func (e *Engine) Enrich(ctx context.Context, g *graph.Graph, nodeID string) (Outcome, error) {
	node, ok := g.Get(nodeID)
	if !ok {
		return Outcome{}, fmt.Errorf("enrich: node %s not in %s graph", nodeID, g.Category())
	}
	category := g.Category()

	before := e.validator.Validate(node, category)
	out := Outcome{Before: before, After: before}
	if !before.NeedsEnrichment {
		metrics.Enrichments.WithLabelValues("skipped").Inc()
		return out, nil
	}

	// Freshness-only gap: confirm and restamp, no sources needed.
	if len(before.MissingFields) == 0 && before.Complete {
		g.Touch(nodeID)
		node, _ = g.Get(nodeID)
		out.After = e.validator.Validate(node, category)
		out.Applied = true
		metrics.Enrichments.WithLabelValues("refreshed").Inc()
		logging.EnrichDebug("%s %s: freshness refresh only", category, nodeID)
		return out, nil
	}

	missing := before.MissingFields
	merged := types.Value{}

	// Primary source: the node's own page.
	if fields := e.fromPrimary(ctx, node, category, missing); len(fields) > 0 {
		merged = merged.Merge(fields)
		missing = subtract(missing, fields)
	}

	// Secondary source: general search by vendor name.
	if len(missing) > 0 && e.search != nil && usableName(node.Name) {
		if fields := e.fromSecondary(ctx, node, category, missing); len(fields) > 0 {
			merged = merged.Merge(fields)
		}
	}

	if len(merged) == 0 {
		metrics.Enrichments.WithLabelValues("failed").Inc()
		logging.EnrichDebug("%s %s: no fields recovered", category, nodeID)
		return out, nil
	}

	g.Update(nodeID, merged)
	node, _ = g.Get(nodeID)
	out.After = e.validator.Validate(node, category)
	out.Applied = true
	for f := range merged {
		out.FieldsAdded = append(out.FieldsAdded, f)
	}

	metrics.Enrichments.WithLabelValues("enriched").Inc()
	logging.Enrich("%s %s: +%v, score %.2f -> %.2f", category, nodeID, out.FieldsAdded, before.OverallScore, out.After.OverallScore)
	if e.recorder != nil {
		e.recorder.RecordEnrichment(nodeID, category, before.OverallScore, out.After.OverallScore, out.FieldsAdded)
	}
	return out, nil
}

// fromPrimary fetches the node's URL and extracts the missing fields.
// Every failure returns nil: primary-source errors never fail enrichment.
func (e *Engine) fromPrimary(ctx context.Context, node *graph.Node, category types.Category, missing []string) types.Value {
	if !strings.HasPrefix(node.ID, "http") {
		return nil
	}
	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	defer cancel()

	content, err := e.fetcher.Fetch(fetchCtx, node.ID)
	if err != nil {
		logging.EnrichDebug("%s %s: primary fetch failed: %v", category, node.ID, err)
		return nil
	}
	return e.extractFields(ctx, node, category, missing, content)
}

// fromSecondary searches for the vendor by name and extracts from the hit
// snippets.
func (e *Engine) fromSecondary(ctx context.Context, node *graph.Node, category types.Category, missing []string) types.Value {
	searchCtx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	defer cancel()

	query := fmt.Sprintf("%s %s", node.Name, category)
	hits, err := e.search.Search(searchCtx, query)
	if err != nil || len(hits) == 0 {
		logging.EnrichDebug("%s %s: secondary search failed: %v (%d hits)", category, node.ID, err, len(hits))
		return nil
	}

	var sb strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&sb, "%s\n%s\n\n", h.Title, h.Snippet)
	}
	return e.extractFields(ctx, node, category, missing, sb.String())
}

// extractFields runs the scoped extraction prompt and keeps only the fields
// that were actually requested and usable.
func (e *Engine) extractFields(ctx context.Context, node *graph.Node, category types.Category, missing []string, content string) types.Value {
	prompt := extractionPrompt(node.Name, category, missing, content)
	obj, err := llm.CompleteJSON(ctx, e.llm, prompt, e.opts.LLMTimeout)
	if err != nil {
		logging.EnrichDebug("%s %s: extraction failed: %v", category, node.ID, err)
		return nil
	}

	out := types.Value{}
	for _, field := range missing {
		for _, alias := range quality.Aliases(category, field) {
			if v, ok := obj[alias]; ok && v != nil {
				out[field] = v
				break
			}
		}
	}
	return out
}

// usableName filters names the secondary source cannot search for: blank,
// placeholder, too short, or purely numeric.
func usableName(name string) bool {
	name = strings.TrimSpace(name)
	if len(name) < 3 {
		return false
	}
	switch strings.ToLower(name) {
	case "unknown", strings.ToLower(graph.ErrorName):
		return false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return true
		}
	}
	return false
}

func subtract(fields []string, got types.Value) []string {
	var out []string
	for _, f := range fields {
		if _, ok := got[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}

// =============================================================================
// RETROACTIVE BATCH
// =============================================================================

// BatchResult summarizes a retroactive sweep over one graph.
type BatchResult struct {
	Scanned  int
	Eligible int
	Improved int
}

// RetroBatch sweeps every main node of g and enriches the ones scoring
// below 0.5 with at least one missing field and a usable title and URL.
// An update is kept only when it improves the overall score by at least
// MinImprovement; anything less rolls the node back to its pre-sweep state.
// Fetches run on a bounded worker pool.
func (e *Engine) RetroBatch(ctx context.Context, g *graph.Graph) (BatchResult, error) {
	var res BatchResult
	nodes := g.Query()
	res.Scanned = len(nodes)

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(e.opts.BatchWorkers)

	improved := make(chan struct{}, len(nodes))
	eligible := 0
	for _, node := range nodes {
		report := e.validator.Validate(node, g.Category())
		if report.OverallScore >= 0.5 || len(report.MissingFields) == 0 {
			continue
		}
		if !usableName(node.Name) || !strings.HasPrefix(node.ID, "http") {
			continue
		}
		eligible++

		id := node.ID
		snapName := node.Name
		snapData := node.OriginalData.Clone()
		snapCompleteness := node.Completeness
		snapTime := node.Timestamp
		grp.Go(func() error {
			out, err := e.Enrich(grpCtx, g, id)
			if err != nil {
				return nil // node vanished mid-sweep, skip
			}
			if !out.Applied {
				return nil
			}
			if out.After.OverallScore-out.Before.OverallScore >= e.opts.MinImprovement {
				improved <- struct{}{}
				return nil
			}
			g.Restore(id, snapName, snapData, snapCompleteness, snapTime)
			logging.EnrichDebug("%s %s: gain %.2f below threshold, rolled back", g.Category(), id, out.After.OverallScore-out.Before.OverallScore)
			return nil
		})
	}
	res.Eligible = eligible

	err := grp.Wait()
	close(improved)
	for range improved {
		res.Improved++
	}
	logging.Enrich("%s retro batch: scanned=%d eligible=%d improved=%d", g.Category(), res.Scanned, res.Eligible, res.Improved)
	return res, err
}
