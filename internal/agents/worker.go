// Package agents implements the category workers: one searcher per service
// family (venue, catering, decor) sharing a single pipeline — ensure graph
// coverage, filter on mandatory constraints, enrich the survivors, score
// against optional wishes and style vocabulary, and return a ranked slice.
// Workers are reentrant; all mutable state lives in the graph, which
// serializes its own writes.
package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gala/internal/config"
	"gala/internal/crawler"
	"gala/internal/enrich"
	"gala/internal/graph"
	"gala/internal/logging"
	"gala/internal/retrieval"
	"gala/internal/types"
)

// =============================================================================
// REQUEST
// =============================================================================

// Request is the worker-facing slice of a session's criteria, flattened into
// task parameters by the planner and parsed back here.
type Request struct {
	UserID     string
	Budget     float64
	GuestCount int
	Style      string
	Location   string
	Mandatory  types.Value
	Optional   []string
	Keywords   []string
	SeedURLs   []string

	// Correction knobs, merged in from the strategy catalogue.
	RelaxFactor     float64 // <1 scales numeric mandatory constraints down
	BudgetIncrease  float64 // >0 raises the assigned budget by this fraction
	UseAlternatives bool    // drop non-budget mandatory constraints entirely
}

// Params flattens the request into a task parameter Value.
func (r Request) Params() types.Value {
	p := types.Value{
		"user_id":     r.UserID,
		"budget":      r.Budget,
		"guest_count": r.GuestCount,
	}
	if r.Style != "" {
		p["style"] = r.Style
	}
	if r.Location != "" {
		p["location"] = r.Location
	}
	if len(r.Mandatory) > 0 {
		p["mandatory"] = map[string]any(r.Mandatory)
	}
	if len(r.Optional) > 0 {
		p["optional"] = r.Optional
	}
	if len(r.Keywords) > 0 {
		p["keywords"] = r.Keywords
	}
	if len(r.SeedURLs) > 0 {
		p["seed_urls"] = r.SeedURLs
	}
	if r.RelaxFactor > 0 {
		p["relax_factor"] = r.RelaxFactor
	}
	if r.BudgetIncrease > 0 {
		p["budget_increase"] = r.BudgetIncrease
	}
	if r.UseAlternatives {
		p["use_alternatives"] = true
	}
	return p
}

// ParseRequest reads a request back out of task parameters.
func ParseRequest(params types.Value) Request {
	r := Request{
		UserID:    params.String("user_id"),
		Style:     strings.ToLower(params.String("style")),
		Location:  params.String("location"),
		Mandatory: params.Map("mandatory"),
		Optional:  params.Strings("optional"),
		Keywords:  params.Strings("keywords"),
		SeedURLs:  params.Strings("seed_urls"),
	}
	r.Budget, _ = params.Float("budget")
	r.GuestCount, _ = params.Int("guest_count")
	r.RelaxFactor, _ = params.Float("relax_factor")
	r.BudgetIncrease, _ = params.Float("budget_increase")
	r.UseAlternatives = params.Bool("use_alternatives")
	return r
}

// applyCorrections folds the correction knobs into the effective constraints.
func (r Request) applyCorrections() Request {
	out := r
	if r.BudgetIncrease > 0 {
		out.Budget = r.Budget * (1 + r.BudgetIncrease)
	}
	if r.UseAlternatives {
		// Alternatives mode keeps only the budget constraint and widens the
		// search to whatever the graph holds.
		out.Mandatory = nil
		return out
	}
	if r.RelaxFactor > 0 && r.RelaxFactor < 1 && len(r.Mandatory) > 0 {
		relaxed := r.Mandatory.Clone()
		for field := range relaxed {
			if field == "capacity" {
				if need, ok := relaxed.Float("capacity"); ok {
					relaxed["capacity"] = need * r.RelaxFactor
				}
			}
		}
		out.Mandatory = relaxed
	}
	return out
}

// =============================================================================
// WORKER
// =============================================================================

// Worker searches one category.
type Worker struct {
	category types.Category
	cfg      config.WorkersConfig
	graph    *graph.Graph
	graphDir string
	crawler  crawler.Crawler
	enricher *enrich.Engine  // nil disables inline enrichment
	patterns *retrieval.Store // nil disables style alignment and pattern updates
	table    scoringTable
}

// NewWorker builds a worker over an existing graph. crawler may be nil when
// coverage is managed externally; enricher and patterns may be nil.
func NewWorker(category types.Category, cfg config.WorkersConfig, g *graph.Graph, graphDir string, cr crawler.Crawler, enricher *enrich.Engine, patterns *retrieval.Store) *Worker {
	return &Worker{
		category: category,
		cfg:      cfg,
		graph:    g,
		graphDir: graphDir,
		crawler:  cr,
		enricher: enricher,
		patterns: patterns,
		table:    tableFor(category),
	}
}

// Category returns the worker's category (also its bus endpoint name).
func (w *Worker) Category() types.Category { return w.category }

// Graph exposes the worker's graph for shared-data registration.
func (w *Worker) Graph() *graph.Graph { return w.graph }

// resolveGraph prefers the sender's shared-data snapshot, so workers operate
// on whatever graph the bus registered; the injected reference is the
// fallback for direct callers.
func (w *Worker) resolveGraph(shared map[string]any) *graph.Graph {
	if g, ok := shared[w.category.GraphName()].(*graph.Graph); ok && g != nil {
		return g
	}
	return w.graph
}

// Search runs the full pipeline over the worker's own graph. An empty slice
// is a valid result; errors are reserved for infrastructure failures (crawler
// with zero yield on an empty graph).
func (w *Worker) Search(ctx context.Context, req Request) ([]types.Candidate, error) {
	return w.SearchGraph(ctx, w.graph, req)
}

// SearchGraph runs the pipeline over an explicit graph and returns ranked
// candidates, at most MaxResults.
func (w *Worker) SearchGraph(ctx context.Context, g *graph.Graph, req Request) ([]types.Candidate, error) {
	req = req.applyCorrections()

	if err := w.ensureCoverage(ctx, g, req.SeedURLs); err != nil {
		return nil, err
	}

	preds := compilePredicates(req)
	var matched []*graph.Node
	for _, node := range g.Query() {
		if node.Name == graph.ErrorName {
			continue
		}
		if matchesAll(preds, node.OriginalData) {
			matched = append(matched, node)
		}
	}
	logging.AgentsDebug("%s: %d/%d nodes pass %d predicates", w.category, len(matched), g.Count(), len(preds))

	w.enrichTop(ctx, g, matched)

	suggestion := w.suggestion(req)
	candidates := make([]types.Candidate, 0, len(matched))
	for _, node := range matched {
		candidates = append(candidates, w.score(node, req, suggestion))
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	max := w.cfg.MaxResults
	if max <= 0 {
		max = 50
	}
	if len(candidates) > max {
		candidates = candidates[:max]
	}

	w.recordOutcome(req, len(candidates))
	logging.Agents("%s search: %d candidates (budget %.0f, guests %d, style %q)", w.category, len(candidates), req.Budget, req.GuestCount, req.Style)
	return candidates, nil
}

// ensureCoverage drives the crawler when the graph is below the category's
// coverage threshold, then persists the grown graph.
func (w *Worker) ensureCoverage(ctx context.Context, g *graph.Graph, seedURLs []string) error {
	threshold := w.cfg.Coverage(string(w.category))
	if g.Count() >= threshold || w.crawler == nil {
		return nil
	}

	inserted, err := w.crawler.Ingest(ctx, g, w.category, seedURLs)
	if err != nil && g.Count() == 0 {
		return fmt.Errorf("%s coverage: %w", w.category, err)
	}
	if inserted > 0 && w.graphDir != "" {
		if err := g.Save(w.graphDir); err != nil {
			logging.AgentsWarn("%s: graph save after coverage: %v", w.category, err)
		}
	}
	return nil
}

// enrichTop repairs up to EnrichTop matched nodes inline before scoring.
// Failures are already swallowed by the engine.
func (w *Worker) enrichTop(ctx context.Context, g *graph.Graph, nodes []*graph.Node) {
	if w.enricher == nil {
		return
	}
	budget := w.cfg.EnrichTop
	for _, node := range nodes {
		if budget <= 0 {
			return
		}
		out, err := w.enricher.Enrich(ctx, g, node.ID)
		if err == nil && out.Applied {
			budget--
		}
	}
}

func (w *Worker) suggestion(req Request) retrieval.Suggestion {
	if w.patterns == nil {
		return retrieval.Suggestion{Style: req.Style}
	}
	return w.patterns.Recommend(retrieval.Context{
		Category:   w.category,
		Style:      req.Style,
		GuestCount: req.GuestCount,
		Dietary:    normalizeDietary(req.Keywords),
	})
}

func (w *Worker) recordOutcome(req Request, results int) {
	if w.patterns == nil {
		return
	}
	w.patterns.Update(retrieval.SuccessPattern{
		Category:   w.category,
		Style:      req.Style,
		GuestCount: req.GuestCount,
		Results:    results,
	}, results > 0)
}

// =============================================================================
// SCORING
// =============================================================================

// score ranks one matched node: optional-field presence, data fit, style
// vocabulary alignment, and premium signals, weighted per the table.
func (w *Worker) score(node *graph.Node, req Request, suggestion retrieval.Suggestion) types.Candidate {
	wts := w.table.weights
	s := wts.Optional*w.optionalScore(node, req) +
		wts.Inference*w.inferenceScore(node, req) +
		wts.Style*w.styleScore(node, req, suggestion) +
		wts.Bonus*w.bonusScore(node)

	cand := types.Candidate{
		Category: w.category,
		Name:     node.Name,
		URL:      node.ID,
		Score:    s,
		Location: node.OriginalData.String("location"),
		Data:     node.OriginalData.Clone(),
	}
	if ps, ok := types.NormalizePrice(node.OriginalData["price"]); ok {
		cand.Price = ps.Min
	}
	if c, ok := node.OriginalData.Int("capacity"); ok {
		cand.Capacity = c
	}
	return cand
}

func (w *Worker) optionalScore(node *graph.Node, req Request) float64 {
	if len(req.Optional) == 0 {
		return 0.5 // neutral when the user expressed no wishes
	}
	hits := 0
	for _, field := range req.Optional {
		if node.OriginalData.Has(foldTerm(field)) || node.OriginalData.Has(field) {
			hits++
		}
	}
	return float64(hits) / float64(len(req.Optional))
}

// inferenceScore rewards candidates whose numbers fit the event: capacity
// headroom close to the guest count and a price leaving slack in the budget.
func (w *Worker) inferenceScore(node *graph.Node, req Request) float64 {
	score, signals := 0.0, 0.0

	if req.GuestCount > 0 {
		if c, ok := node.OriginalData.Float("capacity"); ok {
			signals++
			ratio := c / float64(req.GuestCount)
			switch {
			case ratio >= 1 && ratio <= 1.5:
				score += 1.0 // snug fit
			case ratio > 1.5 && ratio <= 3:
				score += 0.6
			case ratio >= 0.9 && ratio < 1:
				score += 0.3 // tight but workable
			}
		}
	}
	if req.Budget > 0 {
		if ps, ok := types.NormalizePrice(node.OriginalData["price"]); ok {
			signals++
			frac := ps.Min / req.Budget
			switch {
			case frac <= 0.8:
				score += 1.0 // leaves room for extras
			case frac <= 1.0:
				score += 0.5
			}
		}
	}
	if signals == 0 {
		return 0.5
	}
	return score / signals
}

// styleScore measures overlap between the node's vocabulary fields and the
// union of the retrieval suggestion and the worker's own style table.
func (w *Worker) styleScore(node *graph.Node, req Request, suggestion retrieval.Suggestion) float64 {
	wanted := normalizeTerms(suggestion.Terms(w.category))
	wanted = append(wanted, normalizeTerms(w.table.styleTerms[req.Style])...)
	wanted = append(wanted, normalizeTerms(req.Keywords)...)
	if len(wanted) == 0 {
		return 0.5
	}

	var have []string
	for _, field := range w.table.alignFields {
		have = append(have, normalizeTerms(node.OriginalData.Strings(field))...)
		if s := node.OriginalData.String(field); s != "" {
			have = append(have, normalizeTerm(s))
		}
	}

	hits := 0
	seen := map[string]bool{}
	for _, want := range wanted {
		if seen[want] {
			continue
		}
		seen[want] = true
		for _, h := range have {
			if h == want || strings.Contains(h, want) || strings.Contains(want, h) {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(seen))
}

func (w *Worker) bonusScore(node *graph.Node) float64 {
	blob := foldTerm(node.Name)
	for _, field := range w.table.alignFields {
		blob += " " + foldTerm(node.OriginalData.String(field))
		blob += " " + foldTerm(strings.Join(node.OriginalData.Strings(field), " "))
	}
	hits := 0
	for _, signal := range w.table.bonusSignals {
		if strings.Contains(blob, signal) {
			hits++
		}
	}
	score := float64(hits) / 2.0
	if score > 1 {
		score = 1
	}
	return score
}
