package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"gala/internal/config"
	"gala/internal/graph"
	"gala/internal/logging"
	"gala/internal/types"
)

// =============================================================================
// ROD CRAWLER
// =============================================================================
//
// Rod drives a headless Chromium to fetch vendor pages that need JavaScript
// rendering. One browser serves all ingestions; pages open and close per
// URL. Extraction is heuristic: the page's visible text runs through the
// same field regexes the simulated LLM extractor uses, which is enough for
// directory-style vendor listings.

// Rod is the headless-browser Crawler.
type Rod struct {
	cfg config.CrawlerConfig

	mu      sync.Mutex
	browser *rod.Browser
}

// NewRod creates the rod backend. The browser launches lazily on first
// ingest so constructing the crawler never blocks startup.
func NewRod(cfg config.CrawlerConfig) *Rod {
	if cfg.VisitLimit <= 0 {
		cfg.VisitLimit = 10
	}
	return &Rod{cfg: cfg}
}

func (r *Rod) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}
	controlURL, err := launcher.New().Headless(r.cfg.Headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	r.browser = browser
	logging.Crawler("rod: browser connected (headless=%t)", r.cfg.Headless)
	return browser, nil
}

// Close shuts the browser down.
func (r *Rod) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		_ = r.browser.Close()
		r.browser = nil
	}
}

// Ingest implements Crawler.
func (r *Rod) Ingest(ctx context.Context, g *graph.Graph, category types.Category, seedURLs []string) (int, error) {
	if len(seedURLs) == 0 {
		return 0, fmt.Errorf("rod crawler: no seed URLs for %s", category)
	}
	browser, err := r.connect()
	if err != nil {
		return 0, err
	}
	return ingest(ctx, g, category, seedURLs, r.cfg.VisitLimit,
		func(ctx context.Context, url string) (graph.Record, []string, error) {
			return r.fetchPage(ctx, browser, category, url)
		})
}

func (r *Rod) fetchPage(ctx context.Context, browser *rod.Browser, category types.Category, url string) (graph.Record, []string, error) {
	timeout := 20 * time.Second
	if d, err := time.ParseDuration(r.cfg.PageTimeout); err == nil && d > 0 {
		timeout = d
	}
	pageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return graph.Record{}, nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()
	page = page.Context(pageCtx)

	if err := page.WaitLoad(); err != nil {
		return graph.Record{}, nil, fmt.Errorf("load %s: %w", url, err)
	}

	title, text, links, err := scrapePage(page)
	if err != nil {
		return graph.Record{}, nil, err
	}

	rec := extractRecord(category, url, title, text)
	return rec, sameHostLinks(url, links), nil
}

// scrapePage pulls the title, visible text, and anchor hrefs in one eval.
func scrapePage(page *rod.Page) (title, text string, links []string, err error) {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS: `() => ({
			title: document.title,
			text: document.body ? document.body.innerText : "",
			links: Array.from(document.querySelectorAll("a[href]")).map(a => a.href).slice(0, 100),
		})`,
	})
	if err != nil {
		return "", "", nil, fmt.Errorf("evaluate: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return "", "", nil, fmt.Errorf("marshal page scrape: %w", err)
	}
	var scraped struct {
		Title string   `json:"title"`
		Text  string   `json:"text"`
		Links []string `json:"links"`
	}
	if err := json.Unmarshal(raw, &scraped); err != nil {
		return "", "", nil, fmt.Errorf("decode page scrape: %w", err)
	}
	return scraped.Title, scraped.Text, scraped.Links, nil
}

// sameHostLinks keeps outlinks on the seed's host so ingestion stays inside
// the directory it started from.
func sameHostLinks(seedURL string, links []string) []string {
	seed := graph.CanonicalURL(seedURL)
	host := hostOf(seed)
	var out []string
	for _, l := range links {
		c := graph.CanonicalURL(l)
		if c != "" && c != seed && hostOf(c) == host {
			out = append(out, c)
		}
	}
	return out
}

func hostOf(canonical string) string {
	rest := canonical
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// =============================================================================
// HEURISTIC EXTRACTION
// =============================================================================

var (
	pageCapacityRe = regexp.MustCompile(`(?i)(?:capacity|up to|guests?|aforo)\D{0,20}?(\d{2,5})`)
	pagePriceRe    = regexp.MustCompile(`(?i)(?:[$€]\s?([\d,]+(?:\.\d+)?)|([\d,]+(?:\.\d+)?)\s?(?:€|euros?|usd))`)
	pageLocationRe = regexp.MustCompile(`(?i)(?:location|address|ubicaci[oó]n)\s*[:\-]\s*([^\n.]{3,80})`)
)

// extractRecord builds a vendor record from page text. Fields the page does
// not surface stay absent; the enrichment pipeline fills them later.
func extractRecord(category types.Category, url, title, text string) graph.Record {
	name := strings.TrimSpace(title)
	if name == "" {
		name = graph.ErrorName
	}
	data := types.Value{"name": name}

	if m := pageCapacityRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
			data["capacity"] = n
		}
	}
	if m := pagePriceRe.FindStringSubmatch(text); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if p, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64); err == nil {
			data["price"] = p
		}
	}
	if m := pageLocationRe.FindStringSubmatch(text); m != nil {
		data["location"] = strings.TrimSpace(m[1])
	}

	lower := strings.ToLower(text)
	switch category {
	case types.CategoryVenue:
		for _, vt := range []string{"mansion", "hotel", "garden", "estate", "winery", "hall"} {
			if strings.Contains(lower, vt) {
				data["venue_type"] = vt
				break
			}
		}
	case types.CategoryCatering:
		data["meal_types"] = matchVocabulary(lower, []string{"buffet", "plated", "cocktail", "family-style", "stations"})
		data["dietary_options"] = matchVocabulary(lower, []string{"vegan", "vegetarian", "gluten-free", "halal", "kosher"})
	case types.CategoryDecor:
		data["service_levels"] = matchVocabulary(lower, []string{"full-service", "day-of", "consultation", "a la carte"})
		data["floral_arrangements"] = matchVocabulary(lower, []string{"bouquets", "centerpieces", "ceremony decor", "arch flowers"})
	}

	return graph.Record{URL: url, Name: name, Data: data}
}

func matchVocabulary(lower string, vocabulary []string) []any {
	var out []any
	for _, term := range vocabulary {
		if strings.Contains(lower, term) {
			out = append(out, term)
		}
	}
	return out
}
