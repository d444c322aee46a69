package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"gala/internal/config"
	"gala/internal/logging"
)

// =============================================================================
// HTTP SEARCH CLIENT
// =============================================================================

// HTTPSearch queries a JSON search API (SerpAPI-compatible shape: a root
// "organic_results" array of {title, link, snippet}).
type HTTPSearch struct {
	apiKey     string
	baseURL    string
	maxResults int
	httpClient *http.Client
}

// NewHTTPSearch creates the client from config.
func NewHTTPSearch(cfg config.SearchConfig) (*HTTPSearch, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoCredentials
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://serpapi.com/search.json"
	}
	max := cfg.MaxResults
	if max <= 0 {
		max = 5
	}
	return &HTTPSearch{
		apiKey:     cfg.APIKey,
		baseURL:    base,
		maxResults: max,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Provider implements SearchClient.
func (h *HTTPSearch) Provider() string { return "http" }

// Search implements SearchClient.
func (h *HTTPSearch) Search(ctx context.Context, query string) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("api_key", h.apiKey)
	q.Set("num", fmt.Sprintf("%d", h.maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}

	start := time.Now()
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: status %d", resp.StatusCode)
	}

	var payload struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	out := make([]SearchResult, 0, len(payload.OrganicResults))
	for _, r := range payload.OrganicResults {
		out = append(out, SearchResult{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
		if len(out) >= h.maxResults {
			break
		}
	}
	logging.LLMDebug("http search %q: %d hits in %v", query, len(out), time.Since(start))
	return out, nil
}
