package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const browseMaxBody = 4 << 20 // 4 MiB of HTML is plenty

var whitespaceRun = regexp.MustCompile(`[ \t]+`)

// BrowseTool fetches a page and reduces it to readable text for the model.
type BrowseTool struct {
	client   *http.Client
	maxChars int
}

// NewBrowseTool creates a page reader. maxChars caps the extracted text.
func NewBrowseTool(maxChars int) *BrowseTool {
	if maxChars <= 0 {
		maxChars = 8000
	}
	return &BrowseTool{
		client: &http.Client{
			Timeout: 45 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		maxChars: maxChars,
	}
}

func (t *BrowseTool) Name() string { return "browse" }

func (t *BrowseTool) Description() string {
	return "Fetch a web page and return its readable text content. Use after web_search to read a promising result in full."
}

func (t *BrowseTool) Schema() ParamSchema {
	return ParamSchema{
		Type: "object",
		Properties: map[string]*Prop{
			"url": {
				Type:        "string",
				Description: "The http(s) URL of the page to read",
			},
		},
		Required: []string{"url"},
	}
}

func (t *BrowseTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	raw := strings.TrimSpace(args["url"].(string))
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Fail(fmt.Sprintf("invalid URL %q: must be http or https", raw)), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", searchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Fail(fmt.Sprintf("fetch %s: status %d", u.String(), resp.StatusCode)), nil
	}

	body := io.LimitReader(resp.Body, browseMaxBody)

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/plain") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return Ok(t.clip(string(raw))), nil
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	text := ExtractText(doc)
	if text == "" {
		return Fail(fmt.Sprintf("no readable text found at %s", u.String())), nil
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title != "" {
		text = title + "\n\n" + text
	}
	return Ok(t.clip(text)), nil
}

func (t *BrowseTool) clip(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= t.maxChars {
		return text
	}
	return text[:t.maxChars] + "\n\n[truncated]"
}

// ExtractText strips non-content elements and collapses the remaining
// visible text into paragraph-separated lines.
func ExtractText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, iframe, svg, nav, header, footer, form").Remove()

	root := doc.Find("main, article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var lines []string
	root.Find("h1, h2, h3, h4, p, li, td, th, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		line := strings.TrimSpace(whitespaceRun.ReplaceAllString(s.Text(), " "))
		if line != "" {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 {
		return strings.TrimSpace(whitespaceRun.ReplaceAllString(root.Text(), " "))
	}
	return strings.Join(lines, "\n")
}
