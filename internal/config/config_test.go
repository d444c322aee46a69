package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Name != "gala" {
		t.Errorf("unexpected name %q", cfg.Name)
	}
	if cfg.LLM.Provider != "simulated" {
		t.Errorf("default LLM provider should be simulated, got %q", cfg.LLM.Provider)
	}
	if cfg.Workers.MaxResults != 50 {
		t.Errorf("default max results = %d, want 50", cfg.Workers.MaxResults)
	}
	if cfg.Workers.Coverage("catering") != 60 {
		t.Errorf("catering coverage = %d, want 60", cfg.Workers.Coverage("catering"))
	}
	w := cfg.Budget.DefaultWeights
	if w["venue"] != 0.40 || w["catering"] != 0.35 || w["decor"] != 0.25 {
		t.Errorf("unexpected default weights: %v", w)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Planner.MaxCorrections != 2 {
		t.Errorf("expected default max corrections, got %d", cfg.Planner.MaxCorrections)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
planner:
  task_timeout: 5s
workers:
  max_results: 10
budget:
  cooling_rate: 0.9
  initial_temp: 50
  final_temp: 0.5
  inner_iterations: 20
  max_iterations: 200
  early_stop_rounds: 3
  transfer_min: 0.1
  transfer_max: 5
  constraint_penalty: 2
  sum_penalty: 10
  default_weights:
    venue: 0.5
    catering: 0.3
    decor: 0.2
  history_alpha: 0.7
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.GetTaskTimeout(); got != 5*time.Second {
		t.Errorf("task timeout = %v, want 5s", got)
	}
	if cfg.Workers.MaxResults != 10 {
		t.Errorf("max results = %d, want 10", cfg.Workers.MaxResults)
	}
	// Untouched sections keep defaults
	if cfg.Workers.CateringCoverage != 60 {
		t.Errorf("catering coverage lost its default: %d", cfg.Workers.CateringCoverage)
	}
	if cfg.Bus.QueueSize != 256 {
		t.Errorf("bus queue size lost its default: %d", cfg.Bus.QueueSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("merged config should validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key-123")
	t.Setenv("GALA_DATA_DIR", "/tmp/gala-test")
	t.Setenv("GALA_SEED", "42")
	t.Setenv("SEARCH_API_KEY", "search-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Provider != "gemini" || cfg.LLM.APIKey != "test-key-123" {
		t.Errorf("GEMINI_API_KEY override failed: %s/%s", cfg.LLM.Provider, cfg.LLM.APIKey)
	}
	if cfg.DataDir != "/tmp/gala-test" {
		t.Errorf("GALA_DATA_DIR override failed: %s", cfg.DataDir)
	}
	if cfg.Seed != 42 {
		t.Errorf("GALA_SEED override failed: %d", cfg.Seed)
	}
	if cfg.Search.Provider != "http" || cfg.Search.APIKey != "search-key" {
		t.Errorf("SEARCH_API_KEY override failed: %s/%s", cfg.Search.Provider, cfg.Search.APIKey)
	}
}

func TestValidateRejectsBadSchedules(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Budget.CoolingRate = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("cooling rate > 1 should fail validation")
	}

	cfg = DefaultConfig()
	cfg.Budget.InitialTemp = 0.05
	if err := cfg.Validate(); err == nil {
		t.Error("initial temp below final temp should fail validation")
	}

	cfg = DefaultConfig()
	cfg.Budget.DefaultWeights = map[string]float64{"venue": 0.9, "catering": 0.9}
	if err := cfg.Validate(); err == nil {
		t.Error("weights not summing to 1 should fail validation")
	}

	cfg = DefaultConfig()
	cfg.LLM.Provider = "gemini"
	cfg.LLM.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Error("gemini without API key should fail validation")
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Planner.TaskTimeout = "not-a-duration"
	if got := cfg.GetTaskTimeout(); got != 30*time.Second {
		t.Errorf("bad task timeout should fall back to 30s, got %v", got)
	}
	cfg.Knowledge.FetchTimeout = "-5s"
	if got := cfg.GetFetchTimeout(); got != 10*time.Second {
		t.Errorf("negative fetch timeout should fall back to 10s, got %v", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Seed = 7
	cfg.Workers.MaxResults = 25
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Seed != 7 || loaded.Workers.MaxResults != 25 {
		t.Errorf("round trip lost values: seed=%d max=%d", loaded.Seed, loaded.Workers.MaxResults)
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/gala"
	if got := cfg.GraphDir(); got != "/var/lib/gala/graphs" {
		t.Errorf("graph dir = %q", got)
	}
	if got := cfg.TraceDBPath(); got != "/var/lib/gala/trace.db" {
		t.Errorf("trace db = %q", got)
	}
	cfg.Trace.DatabasePath = "/abs/trace.db"
	if got := cfg.TraceDBPath(); got != "/abs/trace.db" {
		t.Errorf("absolute trace db mangled: %q", got)
	}
}
