package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gala/internal/logging"
	"gala/internal/metrics"
	"gala/internal/types"
)

// =============================================================================
// PERSISTENCE
// =============================================================================
//
// One file per category: <type>_graph.json, pretty-printed UTF-8. The format
// tolerates unknown keys so graphs written by newer builds still load.

// graphFile is the on-disk shape.
type graphFile struct {
	Category string           `json:"category"`
	SavedAt  time.Time        `json:"saved_at"`
	Nodes    map[string]*Node `json:"nodes"`
	Edges    [][3]string      `json:"edges"`
}

// FileName returns the persisted file name for a category.
func FileName(category types.Category) string {
	return string(category) + "_graph.json"
}

// Save writes the graph under dir, retrying once on failure. The write goes
// through a temp file and rename so a crash never leaves a torn graph.
func (g *Graph) Save(dir string) error {
	err := g.saveOnce(dir)
	if err != nil {
		logging.GraphWarn("%s graph: save failed (%v), retrying", g.category, err)
		err = g.saveOnce(dir)
	}
	return err
}

func (g *Graph) saveOnce(dir string) error {
	g.mu.RLock()
	file := graphFile{
		Category: string(g.category),
		SavedAt:  time.Now().UTC(),
		Nodes:    make(map[string]*Node, len(g.nodes)),
		Edges:    make([][3]string, 0, len(g.edges)),
	}
	for id, n := range g.nodes {
		file.Nodes[id] = n
	}
	for _, e := range g.edges {
		file.Edges = append(file.Edges, [3]string{e.From, e.Relation, e.To})
	}
	g.mu.RUnlock()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s graph: %w", g.category, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create graph dir: %w", err)
	}

	path := filepath.Join(dir, FileName(g.category))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	logging.GraphDebug("%s graph: saved %d nodes, %d edges", g.category, len(file.Nodes), len(file.Edges))
	return nil
}

// Load reads a category graph from dir. A missing or corrupt file yields an
// empty graph: the crawler rebuilds coverage on demand, so losing a cache is
// a slowdown, not a failure.
func Load(dir string, category types.Category) *Graph {
	g := New(category)

	path := filepath.Join(dir, FileName(category))
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.GraphWarn("%s graph: read %s failed: %v, starting empty", category, path, err)
		}
		return g
	}

	// UseNumber keeps decoded numerics convertible back to the in-process
	// shapes, so Save then Load is lossless for attribute data.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var file graphFile
	if err := dec.Decode(&file); err != nil {
		logging.GraphError("%s graph: corrupt file %s: %v, starting empty", category, path, err)
		return g
	}

	g.mu.Lock()
	for id, n := range file.Nodes {
		if n == nil || id == "" {
			continue
		}
		n.ID = id
		if n.OriginalData != nil {
			n.OriginalData, _ = normalizeNumbers(n.OriginalData).(types.Value)
		}
		g.nodes[id] = n
	}
	for _, triple := range file.Edges {
		g.addEdgeLocked(triple[0], triple[1], triple[2])
	}
	mains := g.mainNodeCountLocked()
	g.mu.Unlock()

	metrics.GraphNodes.WithLabelValues(string(category)).Set(float64(mains))
	logging.Graph("%s graph: loaded %d nodes (%d main), %d edges", category, len(file.Nodes), mains, len(file.Edges))
	return g
}

// normalizeNumbers rewrites decoded json.Number values into the shapes the
// in-process producers use: int for integral numbers, float64 otherwise.
// Containers are rewritten in place and returned.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return int(i)
		}
		f, _ := t.Float64()
		return f
	case types.Value:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	}
	return v
}

// =============================================================================
// PRICE BOUNDS
// =============================================================================

// PriceBounds scans every main node's price attribute through the shared
// normalizer and returns the observed range. ok is false when no node
// carries a usable price; the budget distributor then treats the category as
// unbounded.
func (g *Graph) PriceBounds() (min, max float64, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var stats types.PriceStats
	for _, n := range g.nodes {
		if n.Type != string(g.category) || n.OriginalData == nil {
			continue
		}
		if s, found := types.NormalizePrice(n.OriginalData["price"]); found {
			stats = stats.Add(s)
		}
	}
	if stats.Count == 0 {
		return 0, 0, false
	}
	return stats.Min, stats.Max, true
}
