package config

import "fmt"

// BudgetConfig tunes the simulated-annealing budget distributor. The defaults
// reproduce the reference schedule; changing them changes convergence, not
// correctness, since the output is validated against constraints either way.
type BudgetConfig struct {
	// Annealing schedule
	InitialTemp float64 `yaml:"initial_temp"`
	FinalTemp   float64 `yaml:"final_temp"`
	CoolingRate float64 `yaml:"cooling_rate"`

	// Iterations per temperature and the global cap
	InnerIterations int `yaml:"inner_iterations"`
	MaxIterations   int `yaml:"max_iterations"`

	// EarlyStopRounds stops after this many temperature levels without
	// improvement.
	EarlyStopRounds int `yaml:"early_stop_rounds"`

	// Neighbor transfer bounds (units moved between two categories per step)
	TransferMin float64 `yaml:"transfer_min"`
	TransferMax float64 `yaml:"transfer_max"`

	// Penalty multipliers in the cost function
	ConstraintPenalty float64 `yaml:"constraint_penalty"`
	SumPenalty        float64 `yaml:"sum_penalty"`

	// DefaultWeights apply when no history and no LLM guidance exists.
	DefaultWeights map[string]float64 `yaml:"default_weights"`

	// HistoryAlpha is the EWA base weight for merging historical spend
	// patterns into the weights (effective alpha scales with consistency).
	HistoryAlpha float64 `yaml:"history_alpha"`
}

// DefaultBudgetConfig returns the reference annealing parameters.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		InitialTemp:       100.0,
		FinalTemp:         0.1,
		CoolingRate:       0.95,
		InnerIterations:   100,
		MaxIterations:     1000,
		EarlyStopRounds:   5,
		TransferMin:       0.1,
		TransferMax:       10.0,
		ConstraintPenalty: 2.0,
		SumPenalty:        10.0,
		DefaultWeights: map[string]float64{
			"venue":    0.40,
			"catering": 0.35,
			"decor":    0.25,
		},
		HistoryAlpha: 0.7,
	}
}

// Validate rejects schedules that cannot terminate.
func (b *BudgetConfig) Validate() error {
	if b.CoolingRate <= 0 || b.CoolingRate >= 1 {
		return fmt.Errorf("budget.cooling_rate must be in (0,1), got %v", b.CoolingRate)
	}
	if b.InitialTemp <= b.FinalTemp {
		return fmt.Errorf("budget.initial_temp %v must exceed final_temp %v", b.InitialTemp, b.FinalTemp)
	}
	if b.FinalTemp <= 0 {
		return fmt.Errorf("budget.final_temp must be positive, got %v", b.FinalTemp)
	}
	if b.InnerIterations <= 0 || b.MaxIterations <= 0 {
		return fmt.Errorf("budget iteration counts must be positive")
	}
	if b.TransferMin <= 0 || b.TransferMax < b.TransferMin {
		return fmt.Errorf("budget transfer bounds invalid: [%v, %v]", b.TransferMin, b.TransferMax)
	}
	var sum float64
	for _, w := range b.DefaultWeights {
		if w < 0 {
			return fmt.Errorf("budget weights must be non-negative")
		}
		sum += w
	}
	if len(b.DefaultWeights) > 0 && (sum < 0.99 || sum > 1.01) {
		return fmt.Errorf("budget.default_weights must sum to 1.0, got %v", sum)
	}
	return nil
}
