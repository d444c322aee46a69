// Package budget allocates a total event budget across categories. Weights
// come from an LLM reading of the event description blended with the user's
// history; feasible ranges come from prices observed in the knowledge graphs;
// the split itself is found by simulated annealing with a deterministic,
// seeded schedule.
package budget

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"gala/internal/config"
	"gala/internal/graph"
	"gala/internal/llm"
	"gala/internal/logging"
	"gala/internal/memory"
	"gala/internal/metrics"
	"gala/internal/retrieval"
	"gala/internal/types"
)

// GraphProvider hands the distributor the knowledge graph for a category.
// A nil provider (or nil graph) leaves that category's bounds open.
type GraphProvider func(types.Category) *graph.Graph

// Distributor computes budget splits.
type Distributor struct {
	cfg        config.BudgetConfig
	llm        llm.Client
	llmTimeout time.Duration
	prefs      *memory.PrefsStore
	patterns   *retrieval.Store
	graphs     GraphProvider
	seed       int64
}

// New creates a distributor. llm, prefs, patterns, and graphs may each be
// nil; every input has a fallback.
func New(cfg config.BudgetConfig, client llm.Client, llmTimeout time.Duration, prefs *memory.PrefsStore, patterns *retrieval.Store, graphs GraphProvider, seed int64) *Distributor {
	if llmTimeout <= 0 {
		llmTimeout = 30 * time.Second
	}
	return &Distributor{
		cfg:        cfg,
		llm:        client,
		llmTimeout: llmTimeout,
		prefs:      prefs,
		patterns:   patterns,
		graphs:     graphs,
		seed:       seed,
	}
}

// Distribute splits totalBudget across the categories. The result always
// sums to exactly totalBudget with non-negative amounts; a zero budget
// returns all zeros.
func (d *Distributor) Distribute(ctx context.Context, userID string, totalBudget int, description string) (map[types.Category]int, error) {
	if totalBudget < 0 {
		return nil, fmt.Errorf("budget: total %d is negative", totalBudget)
	}
	if totalBudget == 0 {
		out := make(map[types.Category]int, len(types.Categories()))
		for _, cat := range types.Categories() {
			out[cat] = 0
		}
		return out, nil
	}

	weights := d.mergeWithHistory(userID, d.inferWeights(ctx, description))
	bound := d.scanBounds()
	split := d.seedSplit(description)

	a := &annealer{
		cfg:    d.cfg,
		rng:    rand.New(rand.NewSource(d.seed)),
		weight: weights,
		bound:  bound,
		total:  float64(totalBudget),
	}

	best, err := a.optimize(a.seed(split))
	if err != nil {
		logging.BudgetWarn("annealing failed (%v), proportional fallback", err)
		metrics.BudgetFallbacks.Inc()
		return proportionalSplit(weights, totalBudget), nil
	}

	out := roundSplit(best, weights, bound, totalBudget)
	for cat, amount := range out {
		if amount < 0 {
			logging.BudgetWarn("rounded split negative for %s, proportional fallback", cat)
			metrics.BudgetFallbacks.Inc()
			return proportionalSplit(weights, totalBudget), nil
		}
	}
	logging.Budget("user %s: %d split %v (weights %v)", userID, totalBudget, out, weights)
	return out, nil
}

// seedSplit picks the annealer's starting fractions from the retrieval
// layer's style recommendation, or the configured defaults.
func (d *Distributor) seedSplit(description string) map[types.Category]float64 {
	if d.patterns != nil {
		if split := d.patterns.RecommendSplit(styleFromDescription(description)); len(split) > 0 {
			return split
		}
	}
	return d.defaultWeights()
}

// scanBounds derives each category's feasible amount range from the prices
// in its knowledge graph. A category without price data stays unconstrained.
func (d *Distributor) scanBounds() map[types.Category]bounds {
	out := make(map[types.Category]bounds, len(types.Categories()))
	for _, cat := range types.Categories() {
		var b bounds
		if d.graphs != nil {
			if g := d.graphs(cat); g != nil {
				if min, max, ok := g.PriceBounds(); ok {
					b = bounds{min: min, max: max, known: true}
				}
			}
		}
		out[cat] = b
	}
	return out
}

// Explain renders a human-readable account of a distribution: the user's
// current weights and what the graphs say about market prices.
func (d *Distributor) Explain(userID string, distribution map[types.Category]int) string {
	var sb strings.Builder
	total := 0
	for _, amount := range distribution {
		total += amount
	}
	fmt.Fprintf(&sb, "Budget distribution for %s (total %d):\n", userID, total)

	weights := d.defaultWeights()
	if d.prefs != nil {
		if stored, ok := d.prefs.Get(userID); ok {
			weights = stored
		}
	}

	for _, cat := range types.Categories() {
		amount := distribution[cat]
		share := 0.0
		if total > 0 {
			share = float64(amount) / float64(total) * 100
		}
		fmt.Fprintf(&sb, "  %-9s %8d (%.1f%%, weight %.2f", cat, amount, share, weights[cat])
		if min, max, mean, ok := d.priceStats(cat); ok {
			fmt.Fprintf(&sb, ", market %d-%d mean %d", int(min), int(max), int(mean))
		}
		sb.WriteString(")\n")
	}
	return sb.String()
}

// priceStats summarizes the prices observed in one category's graph.
func (d *Distributor) priceStats(cat types.Category) (min, max, mean float64, ok bool) {
	if d.graphs == nil {
		return 0, 0, 0, false
	}
	g := d.graphs(cat)
	if g == nil {
		return 0, 0, 0, false
	}
	var prices []float64
	for _, node := range g.Query() {
		if ps, found := types.NormalizePrice(node.OriginalData["price"]); found {
			prices = append(prices, ps.Mid())
		}
	}
	if len(prices) == 0 {
		return 0, 0, 0, false
	}
	min, _ = stats.Min(prices)
	max, _ = stats.Max(prices)
	mean, _ = stats.Mean(prices)
	return min, max, mean, true
}
