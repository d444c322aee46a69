package graph

import "gala/internal/types"

// =============================================================================
// ATTRIBUTE PROJECTION TABLES
// =============================================================================
//
// Each category projects a fixed set of record fields into typed leaf nodes
// and edges. The tables are data: adding a projected attribute means adding
// a row, not code.

// projectionShape tells the projector how a field's value turns into leaves.
type projectionShape int

const (
	// shapeScalar projects a single value into one leaf.
	shapeScalar projectionShape = iota
	// shapeList projects each element into its own leaf.
	shapeList
	// shapeSubmap projects each (subkey, value) pair into a leaf whose kind
	// is "<kind>:<subkey>" — the price tables use this.
	shapeSubmap
)

// projection is one row of a category's table.
type projection struct {
	field    string // key in the record's original data
	kind     string // leaf node type and edge relation
	shape    projectionShape
}

func projections(category types.Category) []projection {
	switch category {
	case types.CategoryVenue:
		return venueProjections
	case types.CategoryCatering:
		return cateringProjections
	case types.CategoryDecor:
		return decorProjections
	}
	return nil
}

var venueProjections = []projection{
	{field: "capacity", kind: "capacity", shape: shapeScalar},
	{field: "price", kind: "price", shape: shapeSubmap},
	{field: "atmosphere", kind: "atmosphere", shape: shapeScalar},
	{field: "venue_type", kind: "venue_type", shape: shapeScalar},
	{field: "services", kind: "service", shape: shapeList},
	{field: "restrictions", kind: "restriction", shape: shapeList},
	{field: "supported_events", kind: "supported_event", shape: shapeList},
	{field: "outlinks", kind: "outlink", shape: shapeList},
}

var cateringProjections = []projection{
	{field: "price", kind: "price", shape: shapeSubmap},
	{field: "location", kind: "location", shape: shapeScalar},
	{field: "services", kind: "service", shape: shapeList},
	{field: "meal_types", kind: "meal_type", shape: shapeList},
	{field: "dietary_options", kind: "dietary_option", shape: shapeList},
	{field: "cuisines", kind: "cuisine", shape: shapeList},
	{field: "outlinks", kind: "outlink", shape: shapeList},
}

var decorProjections = []projection{
	{field: "price", kind: "price", shape: shapeSubmap},
	{field: "service_levels", kind: "service_level", shape: shapeList},
	{field: "floral_arrangements", kind: "floral_arrangement", shape: shapeList},
	{field: "rentals", kind: "rental", shape: shapeList},
	{field: "styles", kind: "style", shape: shapeScalar},
	{field: "outlinks", kind: "outlink", shape: shapeList},
}

// projectLocked emits the leaves and edges for one field value. Caller holds
// the write lock.
func (g *Graph) projectLocked(nodeID string, p projection, raw any) {
	if raw == nil {
		return
	}
	switch p.shape {
	case shapeScalar:
		if v := leafValue(raw); v != "" {
			leaf := g.addLeafLocked(p.kind, v)
			g.addEdgeLocked(nodeID, p.kind, leaf)
		}
	case shapeList:
		var items []any
		switch t := raw.(type) {
		case []any:
			items = t
		case []string:
			for _, s := range t {
				items = append(items, s)
			}
		default:
			items = []any{raw}
		}
		for _, item := range items {
			if v := leafValue(item); v != "" {
				leaf := g.addLeafLocked(p.kind, v)
				g.addEdgeLocked(nodeID, p.kind, leaf)
			}
		}
	case shapeSubmap:
		switch t := raw.(type) {
		case map[string]any:
			for sub, v := range t {
				if lv := leafValue(v); lv != "" {
					leaf := g.addLeafLocked(p.kind+":"+sub, lv)
					g.addEdgeLocked(nodeID, p.kind+":"+sub, leaf)
				}
			}
		case types.Value:
			g.projectLocked(nodeID, p, map[string]any(t))
		default:
			// Scalar prices project like a plain attribute.
			if v := leafValue(raw); v != "" {
				leaf := g.addLeafLocked(p.kind, v)
				g.addEdgeLocked(nodeID, p.kind, leaf)
			}
		}
	}
}
