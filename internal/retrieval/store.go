// Package retrieval holds the small in-process knowledge stores that seed
// planning: style-conditioned recommendation patterns per category, budget
// split recommendations, the error-correction strategy catalogue, and a
// success-pattern log the workers feed after each search. Patterns are data
// loaded from JSON files under the retrieval directory, with curated
// defaults compiled in so an empty directory still plans.
package retrieval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gala/internal/logging"
	"gala/internal/types"
)

// =============================================================================
// PATTERN SHAPES
// =============================================================================

// Pattern is one style-conditioned recommendation row. Matching is by style
// plus optional guest-count range; more specific rows win.
type Pattern struct {
	Style     string   `json:"style"`
	MinGuests int      `json:"min_guests,omitempty"`
	MaxGuests int      `json:"max_guests,omitempty"` // 0 = unbounded

	// Recommended vocabularies, keyed per category concern.
	VenueTypes    []string `json:"venue_types,omitempty"`
	Atmospheres   []string `json:"atmospheres,omitempty"`
	Courses       []string `json:"courses,omitempty"`
	MealTypes     []string `json:"meal_types,omitempty"`
	Dietary       []string `json:"dietary,omitempty"`
	ServiceLevels []string `json:"service_levels,omitempty"`
	Arrangements  []string `json:"arrangements,omitempty"`
	Rentals       []string `json:"rentals,omitempty"`
}

// Suggestion is the resolved recommendation for a search context.
type Suggestion struct {
	Style         string
	VenueTypes    []string
	Atmospheres   []string
	Courses       []string
	MealTypes     []string
	Dietary       []string
	ServiceLevels []string
	Arrangements  []string
	Rentals       []string
}

// Terms flattens the suggestion into the scoring vocabulary for a category.
func (s Suggestion) Terms(category types.Category) []string {
	switch category {
	case types.CategoryVenue:
		return append(append([]string{}, s.VenueTypes...), s.Atmospheres...)
	case types.CategoryCatering:
		return append(append(append([]string{}, s.Courses...), s.MealTypes...), s.Dietary...)
	case types.CategoryDecor:
		return append(append(append([]string{}, s.ServiceLevels...), s.Arrangements...), s.Rentals...)
	}
	return nil
}

// SuccessPattern is one logged outcome of a worker search.
type SuccessPattern struct {
	Category   types.Category `json:"category"`
	Style      string         `json:"style"`
	GuestCount int            `json:"guest_count"`
	Results    int            `json:"results"`
	Success    bool           `json:"success"`
	At         time.Time      `json:"at"`
}

// BudgetRecommendation maps a style to a fractional split used to seed the
// annealer. Fractions sum to 1.0.
type BudgetRecommendation struct {
	Style string                     `json:"style"`
	Split map[types.Category]float64 `json:"split"`
}

// =============================================================================
// STORE
// =============================================================================

// storeFile is the persisted shape of one category's pattern file.
type storeFile struct {
	Patterns        []Pattern              `json:"patterns,omitempty"`
	SuccessPatterns []SuccessPattern       `json:"success_patterns,omitempty"`
	BudgetSplits    []BudgetRecommendation `json:"budget_recommendations,omitempty"`
}

// Store is the retrieval layer. One instance serves all categories; state
// is guarded because workers update success patterns concurrently.
type Store struct {
	mu       sync.RWMutex
	dir      string
	patterns map[types.Category][]Pattern
	budgets  []BudgetRecommendation
	log      map[types.Category][]SuccessPattern
}

// NewStore creates a store over dir, merging persisted pattern files on top
// of the compiled-in defaults. A missing or unreadable directory falls back
// to defaults alone.
func NewStore(dir string) *Store {
	s := &Store{
		dir:      dir,
		patterns: make(map[types.Category][]Pattern),
		log:      make(map[types.Category][]SuccessPattern),
	}
	s.resetToDefaults()
	s.loadAll()
	return s
}

func (s *Store) resetToDefaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for cat, rows := range defaultPatterns {
		s.patterns[cat] = append([]Pattern(nil), rows...)
	}
	s.budgets = append([]BudgetRecommendation(nil), defaultBudgetSplits...)
}

// fileFor returns the pattern file path for a category.
func (s *Store) fileFor(category types.Category) string {
	return filepath.Join(s.dir, string(category)+"_patterns.json")
}

func (s *Store) loadAll() {
	for _, cat := range types.Categories() {
		s.loadFile(cat)
	}
	s.loadBudgetFile()
}

func (s *Store) loadFile(category types.Category) {
	data, err := os.ReadFile(s.fileFor(category))
	if err != nil {
		return
	}
	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		logging.RetrievalWarn("%s patterns: corrupt file ignored: %v", category, err)
		return
	}
	s.mu.Lock()
	if len(f.Patterns) > 0 {
		s.patterns[category] = append(s.patterns[category], f.Patterns...)
	}
	s.log[category] = f.SuccessPatterns
	s.mu.Unlock()
	logging.Retrieval("%s patterns: loaded %d rows, %d success entries", category, len(f.Patterns), len(f.SuccessPatterns))
}

func (s *Store) loadBudgetFile() {
	data, err := os.ReadFile(filepath.Join(s.dir, "budget_patterns.json"))
	if err != nil {
		return
	}
	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		logging.RetrievalWarn("budget patterns: corrupt file ignored: %v", err)
		return
	}
	if len(f.BudgetSplits) > 0 {
		s.mu.Lock()
		s.budgets = append(s.budgets, f.BudgetSplits...)
		s.mu.Unlock()
	}
}

// Reload re-reads every pattern file on top of fresh defaults. The watcher
// calls this when a file under the retrieval directory changes.
func (s *Store) Reload() {
	s.resetToDefaults()
	s.loadAll()
	logging.Retrieval("patterns reloaded from %s", s.dir)
}

// =============================================================================
// RECOMMEND
// =============================================================================

// Context describes one search for recommendation purposes.
type Context struct {
	Category   types.Category
	Style      string
	GuestCount int
	Dietary    []string
}

// Recommend resolves the best-matching pattern rows for a context into one
// suggestion. Style match is required for a row to score; among matching
// rows, a satisfied guest range beats an open one. No match returns the
// neutral defaults for the "classic" style.
func (s *Store) Recommend(ctx Context) Suggestion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	style := strings.ToLower(strings.TrimSpace(ctx.Style))
	rows := s.patterns[ctx.Category]

	best, bestScore := -1, -1
	for i, row := range rows {
		score := 0
		if row.Style != "" && row.Style == style {
			score += 2
		} else if row.Style != "" {
			continue
		}
		if row.MinGuests > 0 || row.MaxGuests > 0 {
			if ctx.GuestCount < row.MinGuests || (row.MaxGuests > 0 && ctx.GuestCount > row.MaxGuests) {
				continue
			}
			score++
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		// Unknown style: fall back to the classic row.
		for i, row := range rows {
			if row.Style == "classic" {
				best = i
				break
			}
		}
	}
	if best < 0 {
		return Suggestion{Style: style}
	}

	row := rows[best]
	return Suggestion{
		Style:         style,
		VenueTypes:    row.VenueTypes,
		Atmospheres:   row.Atmospheres,
		Courses:       row.Courses,
		MealTypes:     row.MealTypes,
		Dietary:       row.Dietary,
		ServiceLevels: row.ServiceLevels,
		Arrangements:  row.Arrangements,
		Rentals:       row.Rentals,
	}
}

// RecommendSplit returns the budget split fractions for a style, falling
// back to the balanced default split.
func (s *Store) RecommendSplit(style string) map[types.Category]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	style = strings.ToLower(strings.TrimSpace(style))
	var fallback map[types.Category]float64
	for _, rec := range s.budgets {
		if rec.Style == style {
			return cloneSplit(rec.Split)
		}
		if rec.Style == "" {
			fallback = rec.Split
		}
	}
	if fallback == nil && len(s.budgets) > 0 {
		fallback = s.budgets[0].Split
	}
	return cloneSplit(fallback)
}

func cloneSplit(m map[types.Category]float64) map[types.Category]float64 {
	out := make(map[types.Category]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// =============================================================================
// SUCCESS LOG
// =============================================================================

// Update appends a search outcome to the success log and persists the
// category's file. Persistence failures only log: the pattern log is an
// optimization, not state.
func (s *Store) Update(p SuccessPattern, success bool) {
	p.Success = success
	if p.At.IsZero() {
		p.At = time.Now().UTC()
	}

	s.mu.Lock()
	s.log[p.Category] = append(s.log[p.Category], p)
	entries := append([]SuccessPattern(nil), s.log[p.Category]...)
	patterns := append([]Pattern(nil), s.patterns[p.Category]...)
	s.mu.Unlock()

	if s.dir == "" {
		return
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		logging.RetrievalWarn("%s patterns: mkdir: %v", p.Category, err)
		return
	}
	f := storeFile{Patterns: patterns, SuccessPatterns: entries}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(s.fileFor(p.Category), data, 0644); err != nil {
		logging.RetrievalWarn("%s patterns: persist: %v", p.Category, err)
	}
}

// SuccessRate reports the fraction of successful searches logged for a
// category and style; ok is false with no observations.
func (s *Store) SuccessRate(category types.Category, style string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total, won := 0, 0
	for _, p := range s.log[category] {
		if style != "" && p.Style != style {
			continue
		}
		total++
		if p.Success {
			won++
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(won) / float64(total), true
}

// =============================================================================
// ERROR CORRECTION STRATEGIES
// =============================================================================

// Strategy pairs an error condition with the parameters a correction task
// is synthesized from.
type Strategy struct {
	Name   string      `json:"name"`
	Params types.Value `json:"params"`
}

// strategyRule keys strategies by task family and error substring.
type strategyRule struct {
	taskFamily string // "search", "budget", or "" for any
	substring  string // matched case-insensitively against the error text
	strategies []Strategy
}

// The catalogue: ordered, first family+substring hit wins. This is the one
// central error-to-strategy mapping in the system.
var strategyCatalogue = []strategyRule{
	{taskFamily: "search", substring: "no results", strategies: []Strategy{
		{Name: "relax_constraints", Params: types.Value{"relax_factor": 0.8}},
		{Name: "budget_increase", Params: types.Value{"budget_increase": 0.2}},
	}},
	{taskFamily: "search", substring: "timeout", strategies: []Strategy{
		{Name: "retry_smaller", Params: types.Value{"use_alternatives": true}},
	}},
	{taskFamily: "search", substring: "constraint", strategies: []Strategy{
		{Name: "relax_constraints", Params: types.Value{"relax_factor": 0.8}},
	}},
	{taskFamily: "budget", substring: "", strategies: []Strategy{
		{Name: "proportional_fallback", Params: types.Value{"use_alternatives": true}},
	}},
	{taskFamily: "search", substring: "", strategies: []Strategy{
		{Name: "relax_constraints", Params: types.Value{"relax_factor": 0.8}},
	}},
}

// SuggestErrorCorrection returns the correction strategies for a failed
// task, in application order. An empty return means the error is terminal.
func (s *Store) SuggestErrorCorrection(taskType types.TaskType, errMsg string) []Strategy {
	family := "search"
	if taskType == types.TaskBudgetDistribution {
		family = "budget"
	}
	lower := strings.ToLower(errMsg)
	for _, rule := range strategyCatalogue {
		if rule.taskFamily != "" && rule.taskFamily != family {
			continue
		}
		if rule.substring != "" && !strings.Contains(lower, rule.substring) {
			continue
		}
		out := make([]Strategy, len(rule.strategies))
		copy(out, rule.strategies)
		return out
	}
	return nil
}

// StrategyNames lists the catalogue's distinct strategy names, for the CLI.
func StrategyNames() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, rule := range strategyCatalogue {
		for _, st := range rule.strategies {
			if _, dup := seen[st.Name]; !dup {
				seen[st.Name] = struct{}{}
				out = append(out, st.Name)
			}
		}
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// SAVE DEFAULTS
// =============================================================================

// WriteDefaults materializes the compiled-in patterns as files so operators
// can edit them. Existing files are left alone.
func (s *Store) WriteDefaults() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("retrieval dir: %w", err)
	}
	for cat, rows := range defaultPatterns {
		path := s.fileFor(cat)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		data, err := json.MarshalIndent(storeFile{Patterns: rows}, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	budgetPath := filepath.Join(s.dir, "budget_patterns.json")
	if _, err := os.Stat(budgetPath); os.IsNotExist(err) {
		data, err := json.MarshalIndent(storeFile{BudgetSplits: defaultBudgetSplits}, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(budgetPath, data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", budgetPath, err)
		}
	}
	return nil
}
