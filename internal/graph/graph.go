// Package graph implements the content-addressed vendor knowledge graph.
// Main nodes are keyed by canonicalized URL; typed attribute leaves
// (capacity::120, service::bar, price:space_rental::3500) are shared across
// main nodes, making each category graph a multi-relation property graph.
// Nodes are inserted by the crawler, mutated only by enrichment, and removed
// only by CleanErrors.
package graph

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"gala/internal/logging"
	"gala/internal/metrics"
	"gala/internal/types"
)

// =============================================================================
// NODES AND EDGES
// =============================================================================

// Completeness marks whether a node satisfies its category's vendor record
// invariants (see Record.Complete).
type Completeness string

const (
	Partial  Completeness = "partial"
	Complete Completeness = "complete"
)

// Node is one graph entry. Main nodes carry the full extracted record in
// OriginalData; attribute leaves carry only their identity.
type Node struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Name         string       `json:"name"`
	OriginalData types.Value  `json:"original_data,omitempty"`
	Completeness Completeness `json:"completeness,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Edge is a typed triple. Edges are deduplicated on all three fields and
// kept in insertion order.
type Edge struct {
	From     string `json:"from"`
	Relation string `json:"relation"`
	To       string `json:"to"`
}

// ErrorName marks nodes produced by failed extractions. CleanErrors removes
// them together with their incident edges.
const ErrorName = "ERROR"

// =============================================================================
// GRAPH
// =============================================================================

// Graph is one category's store. Reads take the shared lock; the crawler and
// the enrichment engine are the only writers and each serializes through the
// exclusive lock, so concurrent readers always see a consistent view.
type Graph struct {
	mu       sync.RWMutex
	category types.Category
	nodes    map[string]*Node
	edges    []Edge
	edgeSet  map[Edge]struct{}
}

// New creates an empty graph for a category.
func New(category types.Category) *Graph {
	return &Graph{
		category: category,
		nodes:    make(map[string]*Node),
		edgeSet:  make(map[Edge]struct{}),
	}
}

// Category returns the graph's category.
func (g *Graph) Category() types.Category { return g.category }

// =============================================================================
// RECORDS AND INSERTION
// =============================================================================

// Record is the crawler's extraction of one vendor page. URL is the node
// address; Data holds every extracted attribute.
type Record struct {
	URL  string
	Name string
	Data types.Value
}

// Complete checks the vendor record invariants for a category: venues need a
// numeric capacity, a price, and a name; catering needs name, services,
// location, and price; decor needs name, price, service levels, and floral
// arrangements.
func (r Record) Complete(category types.Category) bool {
	if strings.TrimSpace(r.Name) == "" {
		return false
	}
	_, hasPrice := types.NormalizePrice(r.Data["price"])
	switch category {
	case types.CategoryVenue:
		_, hasCap := r.Data.Float("capacity")
		return hasCap && hasPrice
	case types.CategoryCatering:
		return hasPrice &&
			len(r.Data.Strings("services")) > 0 &&
			r.Data.String("location") != ""
	case types.CategoryDecor:
		return hasPrice &&
			len(r.Data.Strings("service_levels")) > 0 &&
			len(r.Data.Strings("floral_arrangements")) > 0
	}
	return false
}

// Insert upserts the main node for a record and projects its attributes into
// leaf nodes and edges. Inserting the same record twice leaves the graph
// unchanged: the node is overwritten with identical content and every edge
// dedupes. Insert never deletes leaves, so shrinking records leave stale
// edges behind until CleanErrors or a fresh graph build.
func (g *Graph) Insert(rec Record) string {
	id := CanonicalURL(rec.URL)
	if id == "" {
		id = "name://" + strings.ToLower(strings.TrimSpace(rec.Name))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	completeness := Partial
	if rec.Complete(g.category) {
		completeness = Complete
	}

	node := &Node{
		ID:           id,
		Type:         string(g.category),
		Name:         rec.Name,
		OriginalData: rec.Data,
		Completeness: completeness,
		Timestamp:    time.Now().UTC(),
	}
	if prev, ok := g.nodes[id]; ok {
		// Keep the original timestamp on a byte-identical re-insert so
		// idempotent crawls do not masquerade as freshness.
		if prev.Name == node.Name && prev.OriginalData.JSON() == node.OriginalData.JSON() {
			node.Timestamp = prev.Timestamp
		}
	}
	g.nodes[id] = node

	for _, p := range projections(g.category) {
		g.projectLocked(id, p, rec.Data[p.field])
	}

	metrics.GraphNodes.WithLabelValues(string(g.category)).Set(float64(g.mainNodeCountLocked()))
	logging.GraphDebug("%s graph: inserted %s (%s, %s)", g.category, rec.Name, id, completeness)
	return id
}

// addEdgeLocked appends an edge unless an identical triple exists.
func (g *Graph) addEdgeLocked(from, relation, to string) {
	e := Edge{From: from, Relation: relation, To: to}
	if _, dup := g.edgeSet[e]; dup {
		return
	}
	g.edgeSet[e] = struct{}{}
	g.edges = append(g.edges, e)
}

// addLeafLocked ensures a leaf node exists for an attribute value.
func (g *Graph) addLeafLocked(kind, value string) string {
	id := kind + "::" + value
	if _, ok := g.nodes[id]; !ok {
		g.nodes[id] = &Node{
			ID:        id,
			Type:      kind,
			Name:      value,
			Timestamp: time.Now().UTC(),
		}
	}
	return id
}

// =============================================================================
// QUERIES
// =============================================================================

// Query returns every main node of the graph's category, sorted by id for
// deterministic iteration.
func (g *Graph) Query() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Node
	for _, n := range g.nodes {
		if n.Type == string(g.category) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the node with the given id.
func (g *Graph) Get(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// FindByRelation returns every edge with the given relation whose source is
// a main node, in insertion order.
func (g *Graph) FindByRelation(relation string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for _, e := range g.edges {
		if e.Relation != relation {
			continue
		}
		if n, ok := g.nodes[e.From]; ok && n.Type == string(g.category) {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of main nodes. Workers use this for the coverage
// check before deciding to crawl.
func (g *Graph) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mainNodeCountLocked()
}

func (g *Graph) mainNodeCountLocked() int {
	n := 0
	for _, node := range g.nodes {
		if node.Type == string(g.category) {
			n++
		}
	}
	return n
}

// =============================================================================
// MUTATION (enrichment only)
// =============================================================================

// Update merges fields into a node's original data, refreshes its timestamp,
// and re-projects the merged attributes. Only the enrichment engine calls
// this. Returns false when the node does not exist.
func (g *Graph) Update(id string, fields types.Value) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok || node.Type != string(g.category) {
		return false
	}
	node.OriginalData = node.OriginalData.Merge(fields)
	node.Timestamp = time.Now().UTC()

	rec := Record{URL: node.ID, Name: node.Name, Data: node.OriginalData}
	if name := fields.String("name"); name != "" {
		node.Name = name
		rec.Name = name
	}
	if rec.Complete(g.category) {
		node.Completeness = Complete
	}
	for _, p := range projections(g.category) {
		g.projectLocked(id, p, node.OriginalData[p.field])
	}
	logging.GraphDebug("%s graph: updated %s (+%d fields)", g.category, id, len(fields))
	return true
}

// Restore writes a previously captured node state back, discarding the last
// Update. Leaves projected by the discarded merge stay behind, same as a
// shrinking re-insert.
func (g *Graph) Restore(id, name string, data types.Value, completeness Completeness, ts time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[id]
	if !ok || node.Type != string(g.category) {
		return false
	}
	node.Name = name
	node.OriginalData = data
	node.Completeness = completeness
	node.Timestamp = ts
	logging.GraphDebug("%s graph: restored %s", g.category, id)
	return true
}

// Touch refreshes a node's timestamp without changing content. Used when
// enrichment confirms a node is still accurate but had gone stale.
func (g *Graph) Touch(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[id]
	if !ok {
		return false
	}
	node.Timestamp = time.Now().UTC()
	return true
}

// CleanErrors removes every node named ERROR together with its incident
// edges and returns the number of nodes removed.
func (g *Graph) CleanErrors() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	doomed := make(map[string]struct{})
	for id, n := range g.nodes {
		if n.Name == ErrorName {
			doomed[id] = struct{}{}
		}
	}
	if len(doomed) == 0 {
		return 0
	}

	for id := range doomed {
		delete(g.nodes, id)
	}
	kept := g.edges[:0]
	for _, e := range g.edges {
		_, fromDoomed := doomed[e.From]
		_, toDoomed := doomed[e.To]
		if fromDoomed || toDoomed {
			delete(g.edgeSet, e)
			continue
		}
		kept = append(kept, e)
	}
	g.edges = kept

	metrics.GraphNodes.WithLabelValues(string(g.category)).Set(float64(g.mainNodeCountLocked()))
	logging.Graph("%s graph: cleaned %d error nodes", g.category, len(doomed))
	return len(doomed)
}

// =============================================================================
// URL CANONICALIZATION
// =============================================================================

// CanonicalURL normalizes a URL into a node address: scheme and host fold to
// lowercase, default ports, fragments, and trailing slashes drop, and query
// parameters sort. Unparseable input returns "".
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Host = strings.TrimSuffix(u.Host, ":80")
	u.Host = strings.TrimSuffix(u.Host, ":443")
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	if u.RawQuery != "" {
		q := u.Query()
		u.RawQuery = q.Encode() // Encode sorts keys
	}
	return u.String()
}

// leafValue renders an attribute scalar into the leaf node value.
func leafValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case int:
		return fmt.Sprintf("%d", t)
	case int64:
		return fmt.Sprintf("%d", t)
	case bool:
		return fmt.Sprintf("%t", t)
	}
	return ""
}
