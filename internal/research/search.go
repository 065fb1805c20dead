// Package research gathers supporting evidence for a reply: it fans out to
// a general web search and a social-media-restricted search, then
// normalizes, deduplicates, caps and orders the combined result set.
package research

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"aikun/internal/logging"
	"aikun/internal/types"
)

// DuckDuckGoClient implements types.SearchClient against the DuckDuckGo
// HTML interface. No API key required; the backend exposes only coarse
// locale (kl) and time-range (df) filters.
type DuckDuckGoClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDuckDuckGoClient creates a search client with the given per-request
// timeout.
func NewDuckDuckGoClient(timeout time.Duration) *DuckDuckGoClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DuckDuckGoClient{
		baseURL:    "https://html.duckduckgo.com/html/",
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search performs one backend call. An empty result list is a valid
// outcome, never an error.
func (c *DuckDuckGoClient) Search(ctx context.Context, query string, opts types.SearchOptions) ([]types.SearchResult, error) {
	q := query
	if opts.SiteFilter != "" {
		q = q + " " + opts.SiteFilter
	}

	params := url.Values{}
	params.Set("q", q)
	if opts.Locale != "" {
		params.Set("kl", opts.Locale)
	}
	if opts.Recency != "" {
		params.Set("df", opts.Recency)
	}

	searchURL := c.baseURL + "?" + params.Encode()
	logging.ResearchDebug("search: %s", searchURL)

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Plain HTTP clients get blocked; look like a browser.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja,en-US;q=0.7,en;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB limit
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	max := opts.Max
	if max <= 0 {
		max = 10
	}
	return parseResults(string(body), max)
}

// parseResults extracts search results from the DuckDuckGo HTML page.
// Result blocks are divs with class "result results_links ...".
func parseResults(htmlContent string, maxResults int) ([]types.SearchResult, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var results []types.SearchResult

	var findResults func(*html.Node)
	findResults = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}

		if n.Type == html.ElementNode && n.Data == "div" {
			for _, attr := range n.Attr {
				if attr.Key == "class" && strings.Contains(attr.Val, "result") && strings.Contains(attr.Val, "results_links") {
					result := extractResult(n)
					if result.Link != "" && result.Title != "" {
						result.Platform = PlatformForURL(result.Link)
						results = append(results, result)
					}
					return
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findResults(c)
		}
	}

	findResults(doc)
	return results, nil
}

// extractResult extracts a single search result from a result div.
func extractResult(n *html.Node) types.SearchResult {
	var result types.SearchResult

	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "class" {
					if strings.Contains(attr.Val, "result__a") {
						result.Link = getAttrValue(n, "href")
						result.Title = getTextContent(n)
					} else if strings.Contains(attr.Val, "result__snippet") {
						result.Snippet = getTextContent(n)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}

	extract(n)

	// Unwrap DuckDuckGo redirect links.
	if strings.HasPrefix(result.Link, "//duckduckgo.com/l/?uddg=") {
		if decoded, err := url.QueryUnescape(strings.TrimPrefix(result.Link, "//duckduckgo.com/l/?uddg=")); err == nil {
			if idx := strings.Index(decoded, "&"); idx > 0 {
				decoded = decoded[:idx]
			}
			result.Link = decoded
		}
	}

	return result
}

func getAttrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func getTextContent(n *html.Node) string {
	var sb strings.Builder
	var getText func(*html.Node)
	getText = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(strings.TrimSpace(n.Data))
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			getText(c)
		}
	}
	getText(n)
	return strings.TrimSpace(sb.String())
}

// PlatformForURL tags a result link with its source platform.
func PlatformForURL(link string) types.Platform {
	u, err := url.Parse(link)
	if err != nil {
		return types.PlatformWeb
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch {
	case host == "x.com" || host == "twitter.com" || strings.HasSuffix(host, ".x.com"):
		return types.PlatformX
	case host == "instagram.com" || strings.HasSuffix(host, ".instagram.com"):
		return types.PlatformInstagram
	case host == "reddit.com" || strings.HasSuffix(host, ".reddit.com"):
		return types.PlatformReddit
	case host == "youtube.com" || host == "youtu.be" || strings.HasSuffix(host, ".youtube.com"):
		return types.PlatformYouTube
	default:
		return types.PlatformWeb
	}
}
