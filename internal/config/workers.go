package config

// WorkersConfig tunes the category workers. Coverage thresholds are the
// minimum node counts below which a worker triggers ingestion before
// filtering; they differ per category because catering directories are far
// denser than venue or decor listings.
type WorkersConfig struct {
	// MaxResults caps the ranked candidate list returned per search.
	MaxResults int `yaml:"max_results"`

	// Coverage thresholds per category
	VenueCoverage    int `yaml:"venue_coverage"`
	CateringCoverage int `yaml:"catering_coverage"`
	DecorCoverage    int `yaml:"decor_coverage"`

	// EnrichTop bounds how many filtered candidates are enriched inline
	// before scoring (the retro batch handles the rest).
	EnrichTop int `yaml:"enrich_top"`
}

// DefaultWorkersConfig returns the reference worker parameters.
func DefaultWorkersConfig() WorkersConfig {
	return WorkersConfig{
		MaxResults:       50,
		VenueCoverage:    30,
		CateringCoverage: 60,
		DecorCoverage:    30,
		EnrichTop:        10,
	}
}

// Coverage returns the ingestion threshold for a category name.
func (w WorkersConfig) Coverage(category string) int {
	switch category {
	case "venue":
		return w.VenueCoverage
	case "catering":
		return w.CateringCoverage
	case "decor":
		return w.DecorCoverage
	}
	return w.VenueCoverage
}
