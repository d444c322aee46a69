// Package llm routes every language-model and external-search call in gala
// through two small interfaces. Each call site supplies its own fallback, so
// the core stays deterministic when credentials are absent: weight inference
// falls back to default weights, enrichment's secondary source degrades to
// the simulated extractor.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gala/internal/config"
	"gala/internal/logging"
	"gala/internal/metrics"
	"gala/internal/types"
)

// =============================================================================
// INTERFACES
// =============================================================================

// Client is the single LLM surface the core uses. Implementations must
// respect the context deadline; callers always pass a bounded context.
type Client interface {
	// Complete returns the model's text for a prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// Provider names the backing implementation for logs and metrics.
	Provider() string
}

// SearchResult is one hit from the general-search provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchClient is the secondary-source surface used by enrichment.
type SearchClient interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
	Provider() string
}

// ErrNoCredentials marks providers that were configured without a key.
var ErrNoCredentials = errors.New("llm: no credentials configured")

// =============================================================================
// CONSTRUCTION
// =============================================================================

// NewClient builds the configured LLM client. Unknown or unconfigured
// providers degrade to the simulated client so the system always runs.
func NewClient(cfg config.LLMConfig, seed int64) Client {
	switch cfg.Provider {
	case "gemini":
		c, err := NewGemini(cfg)
		if err != nil {
			logging.LLMWarn("gemini unavailable (%v), using simulated client", err)
			return NewSimulated(seed)
		}
		return c
	case "simulated", "":
		return NewSimulated(seed)
	default:
		logging.LLMWarn("unknown llm provider %q, using simulated client", cfg.Provider)
		return NewSimulated(seed)
	}
}

// NewSearchClient builds the configured search client, or nil when the
// secondary source is disabled. Callers treat nil as "no secondary source".
func NewSearchClient(cfg config.SearchConfig, seed int64) SearchClient {
	switch cfg.Provider {
	case "http":
		c, err := NewHTTPSearch(cfg)
		if err != nil {
			logging.LLMWarn("http search unavailable (%v), secondary source disabled", err)
			return nil
		}
		return c
	case "simulated":
		return NewSimulatedSearch(seed)
	default:
		return nil
	}
}

// =============================================================================
// JSON EXTRACTION HELPERS
// =============================================================================

// ExtractJSON pulls the first JSON object out of a model reply. Models wrap
// JSON in prose and code fences no matter how firmly the prompt forbids it.
func ExtractJSON(reply string) (types.Value, error) {
	reply = strings.TrimSpace(reply)
	if i := strings.Index(reply, "```"); i >= 0 {
		reply = reply[i+3:]
		reply = strings.TrimPrefix(reply, "json")
		if j := strings.Index(reply, "```"); j >= 0 {
			reply = reply[:j]
		}
	}
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("llm: no JSON object in reply (%d bytes)", len(reply))
	}
	var out types.Value
	if err := json.Unmarshal([]byte(reply[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("llm: parse reply JSON: %w", err)
	}
	return out, nil
}

// CompleteJSON runs a prompt and parses the reply as a JSON object, counting
// the call in metrics under the client's provider.
func CompleteJSON(ctx context.Context, c Client, prompt string, timeout time.Duration) (types.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	reply, err := c.Complete(ctx, prompt)
	if err != nil {
		metrics.LLMCalls.WithLabelValues(c.Provider(), "error").Inc()
		return nil, err
	}
	obj, err := ExtractJSON(reply)
	if err != nil {
		metrics.LLMCalls.WithLabelValues(c.Provider(), "parse_error").Inc()
		return nil, err
	}
	metrics.LLMCalls.WithLabelValues(c.Provider(), "ok").Inc()
	logging.LLMDebug("%s: prompt %d bytes -> %d keys in %v", c.Provider(), len(prompt), len(obj), time.Since(start))
	return obj, nil
}
