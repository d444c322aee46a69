package agents

import (
	"fmt"
	"strings"

	"gala/internal/types"
)

// =============================================================================
// TERM NORMALIZATION
// =============================================================================

// synonymGroups folds vocabulary variants onto one canonical term before any
// comparison. The first entry of each group is the canonical form.
var synonymGroups = [][]string{
	{"plated", "seated meal", "seated dinner", "sit-down dinner", "sit down dinner"},
	{"buffet", "self-service", "self service"},
	{"family style", "family-style", "shared platters"},
	{"stations", "food stations", "tasting stations"},
	{"gluten-free", "gluten free", "celiac", "celiac-friendly"},
	{"vegan", "plant-based", "plant based"},
	{"vegetarian", "veggie"},
	{"dairy-free", "dairy free", "lactose-free"},
	{"outdoor", "open-air", "open air", "al fresco"},
	{"full-service floral design", "full service florals", "full-service florals"},
	{"ceremony decor", "ceremony decoration", "ceremony styling"},
}

var synonymIndex = func() map[string]string {
	idx := make(map[string]string)
	for _, group := range synonymGroups {
		canonical := group[0]
		for _, term := range group {
			idx[foldTerm(term)] = canonical
		}
	}
	return idx
}()

func foldTerm(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(s, "-", " "))), " ")
}

// normalizeTerm lowercases, collapses separators, and folds synonyms.
func normalizeTerm(s string) string {
	folded := foldTerm(s)
	if canonical, ok := synonymIndex[folded]; ok {
		return canonical
	}
	return folded
}

func normalizeTerms(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, normalizeTerm(s))
	}
	return out
}

// =============================================================================
// PREDICATES
// =============================================================================

// predicate is one compiled mandatory constraint evaluated against a node's
// original data.
type predicate struct {
	field string
	check func(data types.Value) bool
}

// compilePredicates turns the request's mandatory constraints into
// predicates. Matching semantics follow the stored attribute shape: numbers
// compare exactly (capacity as a floor), strings case-insensitively by
// substring, lists by non-empty intersection after synonym folding. Budget
// compiles to "normalized price fits the assigned amount".
func compilePredicates(req Request) []predicate {
	var preds []predicate

	if req.Budget > 0 {
		budget := req.Budget
		preds = append(preds, predicate{field: "budget", check: func(data types.Value) bool {
			ps, ok := types.NormalizePrice(data["price"])
			if !ok {
				// No price on record: keep the candidate, enrichment may
				// recover it and scoring will rank priced options higher.
				return true
			}
			return ps.Min <= budget
		}})
	}

	for field, want := range req.Mandatory {
		preds = append(preds, compileField(field, want, req))
	}
	return preds
}

func compileField(field string, want any, req Request) predicate {
	switch field {
	case "capacity":
		return predicate{field: field, check: func(data types.Value) bool {
			have, ok := data.Float("capacity")
			if !ok {
				return false
			}
			need, ok := types.Value{"v": want}.Float("v")
			if !ok {
				return false
			}
			return have >= need
		}}
	case "price", "budget":
		return predicate{field: field, check: func(data types.Value) bool {
			ps, ok := types.NormalizePrice(data["price"])
			if !ok {
				return false
			}
			limit, ok := types.Value{"v": want}.Float("v")
			if !ok {
				return false
			}
			return ps.Min <= limit
		}}
	}

	switch v := want.(type) {
	case string:
		needle := normalizeTerm(v)
		return predicate{field: field, check: func(data types.Value) bool {
			return strings.Contains(foldTerm(data.String(field)), needle) ||
				listContains(data.Strings(field), needle)
		}}
	case []string:
		return listPredicate(field, v)
	case []any:
		var terms []string
		for _, e := range v {
			terms = append(terms, fmt.Sprint(e))
		}
		return listPredicate(field, terms)
	case float64, int, int64:
		need, _ := types.Value{"v": v}.Float("v")
		return predicate{field: field, check: func(data types.Value) bool {
			have, ok := data.Float(field)
			return ok && have == need
		}}
	case bool:
		return predicate{field: field, check: func(data types.Value) bool {
			return data.Bool(field) == v
		}}
	}
	// Unrecognized constraint shapes never match; the error surfaces as an
	// empty result instead of a panic.
	return predicate{field: field, check: func(types.Value) bool { return false }}
}

// listPredicate requires a non-empty intersection between the wanted terms
// and the stored list (or scalar string).
func listPredicate(field string, want []string) predicate {
	needles := normalizeTerms(want)
	return predicate{field: field, check: func(data types.Value) bool {
		have := normalizeTerms(data.Strings(field))
		if s := data.String(field); s != "" && len(have) == 0 {
			have = []string{normalizeTerm(s)}
		}
		for _, n := range needles {
			for _, h := range have {
				if h == n || strings.Contains(h, n) {
					return true
				}
			}
		}
		return false
	}}
}

func listContains(list []string, needle string) bool {
	for _, item := range list {
		if strings.Contains(foldTerm(item), needle) {
			return true
		}
	}
	return false
}

// matchesAll evaluates every predicate against one node's data.
func matchesAll(preds []predicate, data types.Value) bool {
	for _, p := range preds {
		if !p.check(data) {
			return false
		}
	}
	return true
}
