// Package quality scores knowledge-graph nodes along three orthogonal axes:
// completeness (are the critical fields present), freshness (how recently
// the record was extracted), and accuracy (do the field values pass basic
// plausibility checks). The weighted sum decides whether a node needs
// enrichment and how urgently.
package quality

import (
	"sort"
	"strings"
	"time"

	"gala/internal/graph"
	"gala/internal/logging"
	"gala/internal/types"
)

// =============================================================================
// REPORT
// =============================================================================

// Report is the full quality assessment of one node.
type Report struct {
	Complete bool `json:"complete"`
	Fresh    bool `json:"fresh"`
	Accurate bool `json:"accurate"`

	CompletenessScore float64 `json:"completeness_score"`
	FreshnessScore    float64 `json:"freshness_score"`
	AccuracyScore     float64 `json:"accuracy_score"`
	OverallScore      float64 `json:"overall_score"`

	MissingFields []string `json:"missing_fields,omitempty"`
	InvalidFields []string `json:"invalid_fields,omitempty"`

	NeedsEnrichment    bool `json:"needs_enrichment"`
	EnrichmentPriority int  `json:"enrichment_priority"` // 1 (low) .. 10 (urgent)
}

// =============================================================================
// CRITICAL FIELD TABLES
// =============================================================================

// fieldGroup is one critical field with the aliases scraped data uses for
// it. A group is present when any alias resolves to a non-empty value.
type fieldGroup struct {
	name    string
	aliases []string
}

var criticalFields = map[types.Category][]fieldGroup{
	types.CategoryVenue: {
		{name: "name", aliases: []string{"name", "title"}},
		{name: "capacity", aliases: []string{"capacity", "max_guests", "aforo"}},
		{name: "price", aliases: []string{"price", "prices", "cost", "precio"}},
		{name: "location", aliases: []string{"location", "ubication", "address", "direccion"}},
	},
	types.CategoryCatering: {
		{name: "name", aliases: []string{"name", "title"}},
		{name: "services", aliases: []string{"services", "meal_types", "servicios"}},
		{name: "location", aliases: []string{"location", "ubication", "address", "direccion"}},
		{name: "price", aliases: []string{"price", "prices", "cost", "precio"}},
	},
	types.CategoryDecor: {
		{name: "name", aliases: []string{"name", "title"}},
		{name: "price", aliases: []string{"price", "prices", "cost", "precio"}},
		{name: "service_levels", aliases: []string{"service_levels", "services"}},
		{name: "floral_arrangements", aliases: []string{"floral_arrangements", "arrangements", "florals"}},
	},
}

// CriticalFields returns the critical field names for a category, used by
// the enrichment engine to scope extraction prompts.
func CriticalFields(category types.Category) []string {
	groups := criticalFields[category]
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.name)
	}
	return out
}

// Aliases returns the alias list for a critical field name, the field name
// itself when the category does not define it.
func Aliases(category types.Category, field string) []string {
	for _, g := range criticalFields[category] {
		if g.name == field {
			return g.aliases
		}
	}
	return []string{field}
}

// =============================================================================
// VALIDATOR
// =============================================================================

// Thresholds tunes the pass/fail lines of the three axes.
type Thresholds struct {
	Completeness float64       // minimum completeness score, default 0.5
	Accuracy     float64       // minimum accuracy score, default 0.6
	MaxAge       time.Duration // freshness horizon, default 90 days
	WeightCmp    float64       // overall weighting, defaults 0.4/0.3/0.3
	WeightFresh  float64
	WeightAcc    float64
}

// DefaultThresholds returns the reference validator tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Completeness: 0.5,
		Accuracy:     0.6,
		MaxAge:       90 * 24 * time.Hour,
		WeightCmp:    0.4,
		WeightFresh:  0.3,
		WeightAcc:    0.3,
	}
}

// Validator scores nodes against the per-category critical field tables.
type Validator struct {
	thresholds Thresholds
	now        func() time.Time
}

// New creates a validator. Zero threshold fields take defaults.
func New(t Thresholds) *Validator {
	def := DefaultThresholds()
	if t.Completeness <= 0 {
		t.Completeness = def.Completeness
	}
	if t.Accuracy <= 0 {
		t.Accuracy = def.Accuracy
	}
	if t.MaxAge <= 0 {
		t.MaxAge = def.MaxAge
	}
	if t.WeightCmp <= 0 && t.WeightFresh <= 0 && t.WeightAcc <= 0 {
		t.WeightCmp, t.WeightFresh, t.WeightAcc = def.WeightCmp, def.WeightFresh, def.WeightAcc
	}
	return &Validator{thresholds: t, now: time.Now}
}

// Validate scores one node.
func (v *Validator) Validate(node *graph.Node, category types.Category) Report {
	var r Report
	data := node.OriginalData
	if data == nil {
		data = types.Value{}
	}

	// Completeness: fraction of critical field groups with a present alias.
	groups := criticalFields[category]
	present := 0
	for _, g := range groups {
		if v.groupPresent(node, data, g) {
			present++
		} else {
			r.MissingFields = append(r.MissingFields, g.name)
		}
	}
	if len(groups) > 0 {
		r.CompletenessScore = float64(present) / float64(len(groups))
	}
	r.Complete = r.CompletenessScore >= v.thresholds.Completeness
	sort.Strings(r.MissingFields)

	// Freshness: linear decay from 1.0 at age 0 to 0.0 at MaxAge.
	age := v.now().Sub(NormalizeTimestamp(node.Timestamp))
	switch {
	case node.Timestamp.IsZero():
		r.FreshnessScore = 0
	case age <= 0:
		r.FreshnessScore = 1
	case age >= v.thresholds.MaxAge:
		r.FreshnessScore = 0
	default:
		r.FreshnessScore = 1 - age.Seconds()/v.thresholds.MaxAge.Seconds()
	}
	r.Fresh = !node.Timestamp.IsZero() && age <= v.thresholds.MaxAge

	// Accuracy: per-field plausibility checks over the fields that exist.
	r.AccuracyScore, r.InvalidFields = v.accuracy(node, data)
	r.Accurate = r.AccuracyScore >= v.thresholds.Accuracy

	r.OverallScore = v.thresholds.WeightCmp*r.CompletenessScore +
		v.thresholds.WeightFresh*r.FreshnessScore +
		v.thresholds.WeightAcc*r.AccuracyScore

	// A node needs enrichment when it misses any critical field or has gone
	// stale; clearing the completeness threshold does not excuse known gaps.
	r.NeedsEnrichment = !r.Complete || !r.Fresh || len(r.MissingFields) > 0
	r.EnrichmentPriority = v.priority(r)

	logging.QualityDebug("%s %s: overall=%.2f cmp=%.2f fresh=%.2f acc=%.2f missing=%v",
		category, node.ID, r.OverallScore, r.CompletenessScore, r.FreshnessScore, r.AccuracyScore, r.MissingFields)
	return r
}

// groupPresent reports whether any alias of a group resolves to a non-empty
// value. The node name backs the "name" group when the data lacks a title.
func (v *Validator) groupPresent(node *graph.Node, data types.Value, g fieldGroup) bool {
	if g.name == "name" && strings.TrimSpace(node.Name) != "" && node.Name != graph.ErrorName {
		return true
	}
	for _, alias := range g.aliases {
		if nonEmpty(data[alias]) {
			return true
		}
	}
	return false
}

// nonEmpty is the presence rule: non-zero number, non-blank string,
// non-empty container.
func nonEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case bool:
		return t
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case types.Value:
		return len(t) > 0
	}
	return v != nil
}

// accuracy applies per-field pattern checks: length bounds on title and
// location, numeric bounds on capacity and price, non-empty lists. Fields
// that are absent do not count against accuracy; completeness owns absence.
func (v *Validator) accuracy(node *graph.Node, data types.Value) (float64, []string) {
	checked, valid := 0, 0
	var invalid []string

	fail := func(field string) {
		checked++
		invalid = append(invalid, field)
	}
	pass := func() { checked++; valid++ }

	if name := strings.TrimSpace(node.Name); name != "" {
		if len(name) >= 2 && len(name) <= 200 && name != graph.ErrorName {
			pass()
		} else {
			fail("name")
		}
	}
	if loc := data.String("location"); loc != "" {
		if len(loc) >= 2 && len(loc) <= 300 {
			pass()
		} else {
			fail("location")
		}
	}
	if cap, ok := data.Float("capacity"); ok {
		if cap >= 1 && cap <= 100000 {
			pass()
		} else {
			fail("capacity")
		}
	}
	if raw, ok := data["price"]; ok && raw != nil {
		if stats, found := types.NormalizePrice(raw); found && stats.Min >= 0 && stats.Max <= 10_000_000 {
			pass()
		} else {
			fail("price")
		}
	}
	for _, listField := range []string{"services", "service_levels", "floral_arrangements", "meal_types", "dietary_options"} {
		if raw, ok := data[listField]; ok && raw != nil {
			if len(data.Strings(listField)) > 0 {
				pass()
			} else {
				fail(listField)
			}
		}
	}

	if checked == 0 {
		return 0, invalid
	}
	sort.Strings(invalid)
	return float64(valid) / float64(checked), invalid
}

// priority stacks urgency: low overall score, each missing critical field,
// and staleness each add a step on the 1..10 scale.
func (v *Validator) priority(r Report) int {
	p := 1
	if r.OverallScore < 0.3 {
		p += 3
	} else if r.OverallScore < 0.5 {
		p += 2
	} else if r.OverallScore < 0.7 {
		p++
	}
	p += len(r.MissingFields)
	if !r.Fresh {
		p += 2
	}
	if p > 10 {
		p = 10
	}
	return p
}

// =============================================================================
// TIMESTAMP NORMALIZATION
// =============================================================================

// NormalizeTimestamp folds a timestamp to UTC. Timestamps parsed without a
// zone are already treated as UTC by ParseTimestamp; this keeps comparisons
// uniform for values built in-process.
func NormalizeTimestamp(t time.Time) time.Time {
	return t.UTC()
}

// ParseTimestamp accepts the timestamp spellings found in scraped and
// persisted data: RFC 3339, with or without zone, and a trailing "Z" or
// "UTC" suffix normalized to +00:00. Missing zone means UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if strings.HasSuffix(s, " UTC") {
		s = strings.TrimSuffix(s, " UTC") + "+00:00"
	} else if strings.HasSuffix(s, "UTC") {
		s = strings.TrimSuffix(s, "UTC") + "+00:00"
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
