package budget

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gala/internal/config"
	"gala/internal/logging"
	"gala/internal/metrics"
	"gala/internal/types"
)

// =============================================================================
// SIMULATED ANNEALING
// =============================================================================

// bounds holds the feasible amount range for one category, derived from the
// prices observed in its knowledge graph. An empty graph leaves the category
// unconstrained.
type bounds struct {
	min, max float64
	known    bool
}

func (b bounds) violation(s float64) float64 {
	if !b.known {
		return 0
	}
	if s < b.min {
		return b.min - s
	}
	if s > b.max {
		return s - b.max
	}
	return 0
}

// annealer searches for a split maximizing weighted log-utility under bound
// and sum constraints. Utility is concave (diminishing returns per unit), so
// the optimum spreads money in proportion to the weights while the penalties
// keep the split feasible.
type annealer struct {
	cfg    config.BudgetConfig
	rng    *rand.Rand
	weight map[types.Category]float64
	bound  map[types.Category]bounds
	total  float64
}

// cost is the negated utility plus penalties. Lower is better. Iteration is
// in canonical category order so the float accumulation is identical on
// every run with the same seed.
func (a *annealer) cost(s map[types.Category]float64) float64 {
	c := 0.0
	sum := 0.0
	for _, cat := range types.Categories() {
		amount := s[cat]
		c -= a.weight[cat] * math.Log(1+amount)
		c += a.cfg.ConstraintPenalty * a.bound[cat].violation(amount)
		sum += amount
	}
	return c + a.cfg.SumPenalty*math.Abs(sum-a.total)
}

// seed builds the starting point from the recommended split: clip into each
// category's bounds, then repair the sum the clipping broke.
func (a *annealer) seed(split map[types.Category]float64) map[types.Category]float64 {
	s := make(map[types.Category]float64, len(split))
	for _, cat := range types.Categories() {
		s[cat] = split[cat] * a.total
	}
	a.clamp(s)
	a.repairSum(s)
	return s
}

// clamp pulls every amount into its category's bounds (and above zero).
func (a *annealer) clamp(s map[types.Category]float64) {
	for _, cat := range types.Categories() {
		b := a.bound[cat]
		if b.known {
			if s[cat] < b.min {
				s[cat] = b.min
			}
			if s[cat] > b.max {
				s[cat] = b.max
			}
		} else if s[cat] < 0 {
			s[cat] = 0
		}
	}
}

// repairSum spreads the gap between the split's sum and the target total
// over the categories that still have room in the needed direction,
// proportional to that room, so the repair never leaves anyone's bounds.
// When the bounds themselves make the total unreachable the leftover gap
// stays and the sum penalty keeps reflecting it.
func (a *annealer) repairSum(s map[types.Category]float64) {
	diff := a.total
	for _, cat := range types.Categories() {
		diff -= s[cat]
	}
	if math.Abs(diff) < 1e-9 {
		return
	}

	room := make(map[types.Category]float64, len(s))
	totalRoom := 0.0
	for _, cat := range types.Categories() {
		b := a.bound[cat]
		var r float64
		if diff > 0 {
			r = a.total - s[cat]
			if b.known && b.max-s[cat] < r {
				r = b.max - s[cat]
			}
		} else {
			r = s[cat]
			if b.known && s[cat]-b.min < r {
				r = s[cat] - b.min
			}
		}
		if r < 0 {
			r = 0
		}
		room[cat] = r
		totalRoom += r
	}
	if totalRoom <= 0 {
		return
	}

	move := math.Abs(diff)
	if totalRoom < move {
		move = totalRoom
	}
	for _, cat := range types.Categories() {
		share := room[cat] / totalRoom * move
		if diff > 0 {
			s[cat] += share
		} else {
			s[cat] -= share
		}
	}
}

// neighbor transfers a random percentage of the total between two distinct
// categories, capped by what the source holds. Transfers conserve the sum.
func (a *annealer) neighbor(s map[types.Category]float64) map[types.Category]float64 {
	cats := types.Categories()
	i := a.rng.Intn(len(cats))
	j := a.rng.Intn(len(cats) - 1)
	if j >= i {
		j++
	}
	from, to := cats[i], cats[j]

	maxPct := a.cfg.TransferMax
	if avail := s[from] / a.total * 100; avail < maxPct {
		maxPct = avail
	}
	if maxPct <= a.cfg.TransferMin {
		return s
	}
	pct := a.cfg.TransferMin + a.rng.Float64()*(maxPct-a.cfg.TransferMin)
	amount := pct / 100 * a.total

	out := make(map[types.Category]float64, len(s))
	for k, v := range s {
		out[k] = v
	}
	out[from] -= amount
	out[to] += amount
	return out
}

// optimize runs the geometric annealing schedule and returns the best split
// found. The schedule caps total neighbor evaluations and stops early when
// several consecutive temperature levels bring no improvement.
func (a *annealer) optimize(start map[types.Category]float64) (map[types.Category]float64, error) {
	current := start
	currentCost := a.cost(current)
	best := current
	bestCost := currentCost

	temp := a.cfg.InitialTemp
	iterations := 0
	staleRounds := 0

	for temp > a.cfg.FinalTemp && iterations < a.cfg.MaxIterations {
		improvedThisRound := false
		for i := 0; i < a.cfg.InnerIterations && iterations < a.cfg.MaxIterations; i++ {
			iterations++
			next := a.neighbor(current)
			nextCost := a.cost(next)
			delta := nextCost - currentCost
			// The draw is consumed unconditionally (exp(-delta/T) > 1 for
			// improvements), so the RNG stream is identical on replay.
			if a.rng.Float64() < math.Exp(-delta/temp) {
				current, currentCost = next, nextCost
				if currentCost < bestCost {
					best, bestCost = current, currentCost
					improvedThisRound = true
				}
			}
		}
		if improvedThisRound {
			staleRounds = 0
		} else {
			staleRounds++
			if staleRounds >= a.cfg.EarlyStopRounds {
				logging.BudgetDebug("annealing early stop after %d stale rounds at T=%.2f", staleRounds, temp)
				break
			}
		}
		temp *= a.cfg.CoolingRate
	}

	metrics.AnnealIterations.Observe(float64(iterations))
	logging.BudgetDebug("annealing finished: iterations=%d best_cost=%.4f", iterations, bestCost)

	for cat, amount := range best {
		if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
			return nil, fmt.Errorf("annealing produced invalid amount %v for %s", amount, cat)
		}
	}

	// Neighbor moves search freely under the penalties; the returned split
	// must actually satisfy the bounds, so re-clamp and re-repair.
	out := make(map[types.Category]float64, len(best))
	for k, v := range best {
		out[k] = v
	}
	a.clamp(out)
	a.repairSum(out)
	return out, nil
}

// roundSplit converts a continuous split to integers summing exactly to
// total. Each category keeps its floor; the residue goes to the heaviest
// categories that still have room under their bound, so rounding never
// pushes an amount over its max.
func roundSplit(s map[types.Category]float64, weight map[types.Category]float64, bound map[types.Category]bounds, total int) map[types.Category]int {
	out := make(map[types.Category]int, len(s))
	assigned := 0
	for _, cat := range types.Categories() {
		v := int(math.Floor(s[cat]))
		if v < 0 {
			v = 0
		}
		out[cat] = v
		assigned += v
	}

	residue := total - assigned
	for _, cat := range byWeight(weight) {
		if residue == 0 {
			break
		}
		give := residue
		if b := bound[cat]; b.known {
			if residue > 0 {
				if head := int(math.Floor(b.max)) - out[cat]; head < give {
					give = head
				}
				if give < 0 {
					give = 0
				}
			} else {
				if head := out[cat] - int(math.Ceil(b.min)); give < -head {
					give = -head
				}
				if give > 0 {
					give = 0
				}
			}
		} else if residue < 0 && give < -out[cat] {
			give = -out[cat]
		}
		out[cat] += give
		residue -= give
	}
	if residue != 0 {
		// Bounds leave no room anywhere; the exact sum wins.
		out[heaviest(weight)] += residue
	}
	return out
}

// byWeight orders the categories heaviest first, canonical order on ties.
func byWeight(w map[types.Category]float64) []types.Category {
	cats := append([]types.Category(nil), types.Categories()...)
	sort.SliceStable(cats, func(i, j int) bool { return w[cats[i]] > w[cats[j]] })
	return cats
}

// proportionalSplit is the fallback: integer amounts proportional to the
// weights, residue to the heaviest category.
func proportionalSplit(weight map[types.Category]float64, total int) map[types.Category]int {
	out := make(map[types.Category]int, len(weight))
	assigned := 0
	for _, cat := range types.Categories() {
		v := int(math.Floor(weight[cat] * float64(total)))
		out[cat] = v
		assigned += v
	}
	if residue := total - assigned; residue != 0 {
		out[heaviest(weight)] += residue
	}
	return out
}
