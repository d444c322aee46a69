package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"gala/internal/config"
	"gala/internal/graph"
	"gala/internal/types"
)

// =============================================================================
// HTTP CRAWLER
// =============================================================================
//
// The HTTP backend fetches pages with a plain client and parses them with
// the html tokenizer. It cannot see JavaScript-rendered content, but most
// vendor directories are server-rendered and this avoids the cost of a
// browser per run.

// maxPageBytes caps how much of a page body is read.
const maxPageBytes = 2 << 20

// HTTP is the plain-client Crawler.
type HTTP struct {
	cfg    config.CrawlerConfig
	client *http.Client
}

// NewHTTP creates the HTTP backend.
func NewHTTP(cfg config.CrawlerConfig) *HTTP {
	if cfg.VisitLimit <= 0 {
		cfg.VisitLimit = 10
	}
	timeout := 20 * time.Second
	if d, err := time.ParseDuration(cfg.PageTimeout); err == nil && d > 0 {
		timeout = d
	}
	return &HTTP{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Ingest implements Crawler.
func (h *HTTP) Ingest(ctx context.Context, g *graph.Graph, category types.Category, seedURLs []string) (int, error) {
	if len(seedURLs) == 0 {
		return 0, fmt.Errorf("http crawler: no seed URLs for %s", category)
	}
	return ingest(ctx, g, category, seedURLs, h.cfg.VisitLimit, func(ctx context.Context, url string) (graph.Record, []string, error) {
		title, text, links, err := h.fetchPage(ctx, url)
		if err != nil {
			return graph.Record{}, nil, err
		}
		rec := extractRecord(category, url, title, text)
		return rec, sameHostLinks(url, links), nil
	})
}

func (h *HTTP) fetchPage(ctx context.Context, url string) (title, text string, links []string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", h.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", "", nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", "", nil, fmt.Errorf("parse %s: %w", url, err)
	}
	title, text, links = walkDocument(doc)
	return title, text, resolveLinks(url, links), nil
}

// resolveLinks turns hrefs absolute against the page URL. Unparseable hrefs
// are dropped.
func resolveLinks(pageURL string, hrefs []string) []string {
	base, err := neturl.Parse(pageURL)
	if err != nil {
		return nil
	}
	var out []string
	for _, href := range hrefs {
		ref, err := neturl.Parse(href)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme == "http" || abs.Scheme == "https" {
			out = append(out, abs.String())
		}
	}
	return out
}

// walkDocument collects the title, the visible text, and every anchor href
// in one depth-first pass. Script and style subtrees are skipped.
func walkDocument(doc *html.Node) (title, text string, links []string) {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "a":
				for _, attr := range n.Attr {
					if attr.Key == "href" {
						links = append(links, attr.Val)
						break
					}
				}
			case "br", "p", "div", "li", "tr", "h1", "h2", "h3", "h4":
				sb.WriteByte('\n')
			}
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, strings.TrimSpace(sb.String()), links
}
