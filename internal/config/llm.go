package config

// LLMConfig configures the extraction/weights LLM.
//
// Supported providers:
//   - gemini:    gemini-2.5-flash (default), gemini-2.5-pro
//   - simulated: deterministic canned extraction, no network
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, simulated
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
	Retries  int    `yaml:"retries"`
}

// SearchConfig configures the secondary-source web search.
type SearchConfig struct {
	Provider   string `yaml:"provider"` // http, simulated
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Timeout    string `yaml:"timeout"`
	MaxResults int    `yaml:"max_results"`
}
