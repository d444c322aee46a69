// Package config loads and validates gala configuration. Configuration is a
// YAML file under the data directory; every field has a default so a missing
// file yields a fully working (simulated-backend) setup. Environment
// variables override credentials and paths last.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all gala configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// DataDir anchors every relative path below (graphs, memory, logs, trace).
	DataDir string `yaml:"data_dir"`

	// Seed fixes all pseudo-random behavior (annealing, simulated backends).
	// Zero means derive from wall clock.
	Seed int64 `yaml:"seed"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Planner configuration
	Planner PlannerConfig `yaml:"planner"`

	// Budget distributor configuration
	Budget BudgetConfig `yaml:"budget"`

	// Category worker configuration
	Workers WorkersConfig `yaml:"workers"`

	// Crawler configuration
	Crawler CrawlerConfig `yaml:"crawler"`

	// Knowledge layer (graph, quality, enrichment, retrieval)
	Knowledge KnowledgeConfig `yaml:"knowledge"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Web search configuration
	Search SearchConfig `yaml:"search"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `yaml:"metrics"`

	// Trace store
	Trace TraceConfig `yaml:"trace"`
}

// BusConfig configures the in-process message bus.
type BusConfig struct {
	// QueueSize bounds the inbound dispatch queue.
	QueueSize int `yaml:"queue_size"`
	// ResponseQueueSize bounds the reply queue.
	ResponseQueueSize int `yaml:"response_queue_size"`
	// EndpointQueueSize bounds each endpoint's FIFO.
	EndpointQueueSize int `yaml:"endpoint_queue_size"`
	// DefaultTimeout is used by send_and_wait callers that pass no timeout.
	DefaultTimeout string `yaml:"default_timeout"`
	// DrainTimeout bounds how long Stop waits for in-flight handlers.
	DrainTimeout string `yaml:"drain_timeout"`
}

// PlannerConfig configures the BDI coordinator.
type PlannerConfig struct {
	// TaskTimeout bounds each dispatched task round-trip.
	TaskTimeout string `yaml:"task_timeout"`
	// MaxCorrections caps recovery attempts per failing category.
	MaxCorrections int `yaml:"max_corrections"`
	// QueueLimit bounds a session's pending task queue.
	QueueLimit int `yaml:"queue_limit"`
}

// CrawlerConfig configures vendor page ingestion.
type CrawlerConfig struct {
	// Backend selects the implementation: "rod", "http", or "simulated".
	Backend string `yaml:"backend"`
	// Headless controls the rod browser mode.
	Headless bool `yaml:"headless"`
	// VisitLimit caps pages fetched per ingestion run.
	VisitLimit int `yaml:"visit_limit"`
	// PageTimeout bounds a single page load.
	PageTimeout string `yaml:"page_timeout"`
	// UserAgent is sent on plain HTTP fetches.
	UserAgent string `yaml:"user_agent"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TraceConfig configures the SQLite trace store.
type TraceConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "gala",
		Version: "0.3.0",
		DataDir: ".gala",

		Bus: BusConfig{
			QueueSize:         256,
			ResponseQueueSize: 256,
			EndpointQueueSize: 64,
			DefaultTimeout:    "30s",
			DrainTimeout:      "5s",
		},

		Planner: PlannerConfig{
			TaskTimeout:    "30s",
			MaxCorrections: 2,
			QueueLimit:     64,
		},

		Budget: DefaultBudgetConfig(),

		Workers: DefaultWorkersConfig(),

		Crawler: CrawlerConfig{
			Backend:     "simulated",
			Headless:    true,
			VisitLimit:  10,
			PageTimeout: "20s",
			UserAgent:   "gala-crawler/0.3",
		},

		Knowledge: DefaultKnowledgeConfig(),

		LLM: LLMConfig{
			Provider: "simulated",
			Model:    "gemini-2.5-flash",
			Timeout:  "30s",
			Retries:  2,
		},

		Search: SearchConfig{
			Provider:   "simulated",
			Timeout:    "10s",
			MaxResults: 5,
		},

		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},

		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},

		Trace: TraceConfig{
			Enabled:      true,
			DatabasePath: "trace.db",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if key := os.Getenv("SEARCH_API_KEY"); key != "" {
		c.Search.APIKey = key
		if c.Search.Provider == "simulated" {
			c.Search.Provider = "http"
		}
	}
	if dir := os.Getenv("GALA_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if seed := os.Getenv("GALA_SEED"); seed != "" {
		if n, err := strconv.ParseInt(seed, 10, 64); err == nil {
			c.Seed = n
		}
	}
	if path := os.Getenv("GALA_TRACE_DB"); path != "" {
		c.Trace.DatabasePath = path
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.LLM.Provider == "gemini" && c.LLM.APIKey == "" {
		return fmt.Errorf("LLM provider gemini requires an API key (set GEMINI_API_KEY)")
	}
	if err := c.Budget.Validate(); err != nil {
		return err
	}
	if c.Planner.MaxCorrections < 0 {
		return fmt.Errorf("planner.max_corrections must be >= 0")
	}
	return nil
}

// =============================================================================
// PATH HELPERS - everything anchors on DataDir
// =============================================================================

// resolve joins p under the data dir unless it is already absolute.
func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// GraphDir returns the directory holding <type>_graph.json files.
func (c *Config) GraphDir() string { return c.resolve(c.Knowledge.GraphDir) }

// MemoryDir returns the directory holding session and preference stores.
func (c *Config) MemoryDir() string { return c.resolve("memory") }

// RetrievalDir returns the directory holding retrieval pattern files.
func (c *Config) RetrievalDir() string { return c.resolve(c.Knowledge.RetrievalDir) }

// TraceDBPath returns the SQLite trace database path.
func (c *Config) TraceDBPath() string { return c.resolve(c.Trace.DatabasePath) }

// ConfigPath returns the canonical config file location for a data dir.
func ConfigPath(dataDir string) string { return filepath.Join(dataDir, "config.yaml") }

// =============================================================================
// DURATION HELPERS - string fields parsed with fallbacks
// =============================================================================

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// GetTaskTimeout returns the per-task round-trip timeout.
func (c *Config) GetTaskTimeout() time.Duration {
	return parseDuration(c.Planner.TaskTimeout, 30*time.Second)
}

// GetBusTimeout returns the default send_and_wait timeout.
func (c *Config) GetBusTimeout() time.Duration {
	return parseDuration(c.Bus.DefaultTimeout, 30*time.Second)
}

// GetDrainTimeout returns the bus shutdown drain budget.
func (c *Config) GetDrainTimeout() time.Duration {
	return parseDuration(c.Bus.DrainTimeout, 5*time.Second)
}

// GetLLMTimeout returns the LLM call timeout.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 30*time.Second)
}

// GetSearchTimeout returns the web search timeout.
func (c *Config) GetSearchTimeout() time.Duration {
	return parseDuration(c.Search.Timeout, 10*time.Second)
}

// GetFetchTimeout returns the enrichment page-fetch timeout.
func (c *Config) GetFetchTimeout() time.Duration {
	return parseDuration(c.Knowledge.FetchTimeout, 10*time.Second)
}

// GetPageTimeout returns the crawler page-load timeout.
func (c *Config) GetPageTimeout() time.Duration {
	return parseDuration(c.Crawler.PageTimeout, 20*time.Second)
}
