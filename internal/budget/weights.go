package budget

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gala/internal/llm"
	"gala/internal/logging"
	"gala/internal/types"
)

// =============================================================================
// WEIGHT INFERENCE
// =============================================================================

// weightPrompt asks the model for a fractional split. The reply must be a
// bare JSON object keyed by category.
func weightPrompt(description string) string {
	return fmt.Sprintf(`Infer category weights for an event budget from this description.
Reply with ONLY a JSON object mapping each category to a fraction; fractions must sum to 1.0:
{"venue": 0.0, "catering": 0.0, "decor": 0.0}

Description:
%s`, description)
}

// inferWeights asks the LLM for a split and falls back to the configured
// defaults on any failure: missing keys, unparseable reply, negative values,
// or a zero sum.
func (d *Distributor) inferWeights(ctx context.Context, description string) map[types.Category]float64 {
	fallback := d.defaultWeights()
	if d.llm == nil {
		return fallback
	}

	obj, err := llm.CompleteJSON(ctx, d.llm, weightPrompt(description), d.llmTimeout)
	if err != nil {
		logging.BudgetWarn("weight inference failed, using defaults: %v", err)
		return fallback
	}

	out := make(map[types.Category]float64, len(types.Categories()))
	sum := 0.0
	for _, cat := range types.Categories() {
		w, ok := obj.Float(string(cat))
		if !ok || w < 0 {
			logging.BudgetWarn("weight inference reply invalid for %s, using defaults", cat)
			return fallback
		}
		out[cat] = w
		sum += w
	}
	if sum <= 0 {
		logging.BudgetWarn("weight inference summed to zero, using defaults")
		return fallback
	}
	for cat := range out {
		out[cat] /= sum
	}
	return out
}

func (d *Distributor) defaultWeights() map[types.Category]float64 {
	out := make(map[types.Category]float64, len(types.Categories()))
	sum := 0.0
	for _, cat := range types.Categories() {
		w := d.cfg.DefaultWeights[string(cat)]
		out[cat] = w
		sum += w
	}
	if sum <= 0 {
		return map[types.Category]float64{
			types.CategoryVenue:    0.40,
			types.CategoryCatering: 0.35,
			types.CategoryDecor:    0.25,
		}
	}
	for cat := range out {
		out[cat] /= sum
	}
	return out
}

// =============================================================================
// HISTORY MERGE
// =============================================================================

// mergeWithHistory blends freshly inferred weights with the user's stored
// profile. The blend trusts the new observation more when it ranks the
// categories the same way the history does: alpha = base + 0.3*concordance,
// merged = alpha*new + (1-alpha)*stored, renormalized. The merged weights are
// persisted back to the profile.
func (d *Distributor) mergeWithHistory(userID string, fresh map[types.Category]float64) map[types.Category]float64 {
	if d.prefs == nil || userID == "" {
		return fresh
	}
	stored, ok := d.prefs.Get(userID)
	if !ok {
		d.persistWeights(userID, fresh)
		return fresh
	}

	consistency := kendallConcordance(stored, fresh)
	alpha := d.cfg.HistoryAlpha + 0.3*consistency
	if alpha > 1 {
		alpha = 1
	}

	merged := make(map[types.Category]float64, len(fresh))
	sum := 0.0
	for _, cat := range types.Categories() {
		w := alpha*fresh[cat] + (1-alpha)*stored[cat]
		merged[cat] = w
		sum += w
	}
	if sum <= 0 {
		return fresh
	}
	for cat := range merged {
		merged[cat] /= sum
	}

	logging.BudgetDebug("user %s weight merge: consistency=%.2f alpha=%.2f", userID, consistency, alpha)
	d.persistWeights(userID, merged)
	return merged
}

func (d *Distributor) persistWeights(userID string, w map[types.Category]float64) {
	if err := d.prefs.Set(userID, w); err != nil {
		logging.BudgetWarn("persist weights for %s: %v", userID, err)
	}
}

// kendallConcordance measures how similarly two weight maps rank the
// categories: the fraction of category pairs ordered the same way. Fewer than
// two categories are trivially concordant.
func kendallConcordance(prev, next map[types.Category]float64) float64 {
	cats := types.Categories()
	if len(cats) < 2 {
		return 1.0
	}
	pairs, concordant := 0, 0
	for i := 0; i < len(cats); i++ {
		for j := i + 1; j < len(cats); j++ {
			a, b := cats[i], cats[j]
			dp := prev[a] - prev[b]
			dn := next[a] - next[b]
			pairs++
			if dp*dn > 0 || (dp == 0 && dn == 0) {
				concordant++
			}
		}
	}
	return float64(concordant) / float64(pairs)
}

// heaviest returns the category with the largest weight, ties broken by
// canonical category order.
func heaviest(w map[types.Category]float64) types.Category {
	cats := types.Categories()
	best := cats[0]
	for _, cat := range cats[1:] {
		if w[cat] > w[best] {
			best = cat
		}
	}
	return best
}

// styleFromDescription scans a free-text description for a known style word.
func styleFromDescription(description string) string {
	lower := strings.ToLower(description)
	styles := []string{"rustic", "elegant", "modern", "classic", "beach", "luxury"}
	sort.Strings(styles)
	for _, s := range styles {
		if strings.Contains(lower, s) {
			return s
		}
	}
	return ""
}
