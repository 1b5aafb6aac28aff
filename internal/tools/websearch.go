package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	searchEndpoint  = "https://html.duckduckgo.com/html/"
	searchUserAgent = "Mozilla/5.0 (compatible; figaro/1.0)"
)

// SearchTool queries the DuckDuckGo HTML endpoint and scrapes the result
// list. No API key needed, which keeps the assistant usable out of the box.
type SearchTool struct {
	client     *http.Client
	maxResults int
}

// NewSearchTool creates a web search tool. maxResults caps how many hits
// are returned per query.
func NewSearchTool(maxResults int) *SearchTool {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &SearchTool{
		client:     &http.Client{Timeout: 30 * time.Second},
		maxResults: maxResults,
	}
}

func (t *SearchTool) Name() string { return "web_search" }

func (t *SearchTool) Description() string {
	return "Search the web for current information. Use for facts you don't know or anything that may have changed recently: news, weather, prices, schedules, people, places."
}

func (t *SearchTool) Schema() ParamSchema {
	return ParamSchema{
		Type: "object",
		Properties: map[string]*Prop{
			"query": {
				Type:        "string",
				Description: "The search query, e.g. 'weather in Lisbon tomorrow'",
			},
		},
		Required: []string{"query"},
	}
}

type searchHit struct {
	title   string
	url     string
	snippet string
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	query := strings.TrimSpace(args["query"].(string))
	if query == "" {
		return Fail("search query is empty"), nil
	}

	hits, err := t.search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return Ok(fmt.Sprintf("No results found for %q.", query)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for %q:\n\n", query)
	for i, hit := range hits {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, hit.title, hit.url)
		if hit.snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", hit.snippet)
		}
		sb.WriteString("\n")
	}
	return Ok(strings.TrimRight(sb.String(), "\n")), nil
}

func (t *SearchTool) search(ctx context.Context, query string) ([]searchHit, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}
	return t.parseResults(doc), nil
}

func (t *SearchTool) parseResults(doc *goquery.Document) []searchHit {
	var hits []searchHit
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find(".result__a").First()
		href, _ := link.Attr("href")
		hit := searchHit{
			title:   strings.TrimSpace(link.Text()),
			url:     cleanResultURL(href),
			snippet: strings.TrimSpace(s.Find(".result__snippet").Text()),
		}
		if hit.title == "" || hit.url == "" {
			return true
		}
		hits = append(hits, hit)
		return len(hits) < t.maxResults
	})
	return hits
}

// cleanResultURL unwraps DuckDuckGo's redirect links (//duckduckgo.com/l/?uddg=...)
// back to the target URL.
func cleanResultURL(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" {
		return "https:" + href
	}
	return href
}
