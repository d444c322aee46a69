package config

// KnowledgeConfig groups the graph, quality, enrichment, and retrieval
// settings that the knowledge layer shares.
type KnowledgeConfig struct {
	// GraphDir holds the persisted <type>_graph.json files.
	GraphDir string `yaml:"graph_dir"`

	// RetrievalDir holds pattern and strategy YAML files.
	RetrievalDir string `yaml:"retrieval_dir"`

	// HotReload watches RetrievalDir and reloads patterns on change.
	HotReload bool `yaml:"hot_reload"`

	// Quality scoring weights; must sum to 1.0.
	CompletenessWeight float64 `yaml:"completeness_weight"`
	FreshnessWeight    float64 `yaml:"freshness_weight"`
	AccuracyWeight     float64 `yaml:"accuracy_weight"`

	// Quality thresholds
	CompletenessThreshold float64 `yaml:"completeness_threshold"`
	AccuracyThreshold     float64 `yaml:"accuracy_threshold"`
	FreshnessDays         int     `yaml:"freshness_days"`

	// Enrichment
	FetchTimeout string `yaml:"fetch_timeout"`
	// MinImprovement is the quality delta a retro-enrichment must reach to
	// be kept.
	MinImprovement float64 `yaml:"min_improvement"`
	// BatchWorkers bounds concurrent retro-enrichment fetches.
	BatchWorkers int `yaml:"batch_workers"`
	// SearchFallback enables the secondary source when the primary URL
	// yields nothing.
	SearchFallback bool `yaml:"search_fallback"`
}

// DefaultKnowledgeConfig returns the reference knowledge-layer parameters.
func DefaultKnowledgeConfig() KnowledgeConfig {
	return KnowledgeConfig{
		GraphDir:              "graphs",
		RetrievalDir:          "retrieval",
		HotReload:             true,
		CompletenessWeight:    0.4,
		FreshnessWeight:       0.3,
		AccuracyWeight:        0.3,
		CompletenessThreshold: 0.5,
		AccuracyThreshold:     0.6,
		FreshnessDays:         90,
		FetchTimeout:          "10s",
		MinImprovement:        0.10,
		BatchWorkers:          4,
		SearchFallback:        true,
	}
}
