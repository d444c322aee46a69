package enrich

import (
	"fmt"
	"strings"

	"gala/internal/types"
)

// =============================================================================
// EXTRACTION PROMPT
// =============================================================================

// fieldShapes spells out the JSON value expected per field so the model
// (and the simulated extractor) knows the shape, not just the name.
var fieldShapes = map[string]string{
	"name":                `"..."`,
	"location":            `"..."`,
	"capacity":            `0`,
	"price":               `0`,
	"services":            `[]`,
	"service_levels":      `[]`,
	"meal_types":          `[]`,
	"dietary_options":     `[]`,
	"floral_arrangements": `[]`,
}

// extractionPrompt builds the prompt for one node's missing fields. The
// prompt enumerates the exact JSON shape expected and embeds the page
// content; the model must answer with that object and nothing else.
func extractionPrompt(name string, category types.Category, missing []string, content string) string {
	var shape strings.Builder
	shape.WriteString("{\n")
	for i, f := range missing {
		s, ok := fieldShapes[f]
		if !ok {
			s = `"..."`
		}
		fmt.Fprintf(&shape, "  %q: %s", f, s)
		if i < len(missing)-1 {
			shape.WriteString(",")
		}
		shape.WriteString("\n")
	}
	shape.WriteString("}")

	return fmt.Sprintf(`You are extracting structured data about a %s vendor named %q.
Find the missing fields listed below in the page content and reply with ONLY a JSON object of this exact shape, omitting any field the page does not state:
%s

Page content:
%s`, category, name, shape.String(), content)
}
