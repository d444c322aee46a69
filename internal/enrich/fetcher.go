package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"

	"gala/internal/logging"
)

// =============================================================================
// PAGE FETCHER
// =============================================================================

// maxContentBytes caps how much of a page body is read. Vendor pages are
// small; anything larger is almost certainly not a listing.
const maxContentBytes = 2 << 20

// promptContentLimit caps the extracted text handed to the LLM.
const promptContentLimit = 8000

// Fetcher retrieves a vendor page and reduces it to readable text. The
// reduction runs readability first to isolate the main content, then
// converts to markdown; pages readability cannot parse fall back to a
// whole-page markdown conversion.
type Fetcher struct {
	client    *http.Client
	converter *md.Converter
	userAgent string
}

// NewFetcher creates a fetcher with the given per-request timeout.
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if userAgent == "" {
		userAgent = "gala-enrich/0.3"
	}
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		converter: converter,
		userAgent: userAgent,
	}
}

// Fetch returns the readable text of a page. Non-2xx statuses are errors:
// the caller treats any fetch failure as "primary source unavailable".
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", pageURL, err)
	}

	text := f.extract(body, pageURL)
	logging.EnrichDebug("fetched %s: %d bytes -> %d chars readable in %v", pageURL, len(body), len(text), time.Since(start))
	return text, nil
}

// extract reduces raw HTML to readable text.
func (f *Fetcher) extract(body []byte, pageURL string) string {
	parsed, _ := url.Parse(pageURL)

	if article, err := readability.FromReader(strings.NewReader(string(body)), parsed); err == nil {
		text := strings.TrimSpace(article.TextContent)
		if text != "" {
			if article.Title != "" {
				text = article.Title + "\n\n" + text
			}
			return clip(text, promptContentLimit)
		}
	}

	// Readability found no article body; convert the whole page.
	markdown, err := f.converter.ConvertString(string(body))
	if err != nil {
		return clip(string(body), promptContentLimit)
	}
	return clip(strings.TrimSpace(markdown), promptContentLimit)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
