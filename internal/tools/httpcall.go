package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const httpCallMaxBody = 1 << 20

// HTTPTool performs a raw HTTP request against an API endpoint. Unlike
// browse it returns the body verbatim, which suits JSON APIs.
type HTTPTool struct {
	client *http.Client
}

func NewHTTPTool() *HTTPTool {
	return &HTTPTool{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *HTTPTool) Name() string { return "http_call" }

func (t *HTTPTool) Description() string {
	return "Make an HTTP request to an API endpoint and return the raw response body. Use for JSON APIs; use browse for web pages."
}

func (t *HTTPTool) Schema() ParamSchema {
	return ParamSchema{
		Type: "object",
		Properties: map[string]*Prop{
			"url": {
				Type:        "string",
				Description: "The http(s) URL to request",
			},
			"method": {
				Type:        "string",
				Description: "HTTP method, defaults to GET",
				Enum:        []string{"GET", "POST", "PUT", "DELETE"},
			},
			"body": {
				Type:        "string",
				Description: "Request body for POST/PUT, sent as JSON",
			},
		},
		Required: []string{"url"},
	}
}

func (t *HTTPTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	raw := strings.TrimSpace(args["url"].(string))
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Fail(fmt.Sprintf("invalid URL %q: must be http or https", raw)), nil
	}

	method := http.MethodGet
	if m, ok := args["method"].(string); ok && m != "" {
		method = m
	}

	var reqBody io.Reader
	if b, ok := args["body"].(string); ok && b != "" {
		reqBody = strings.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", searchUserAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u.String(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, httpCallMaxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	content := fmt.Sprintf("HTTP %d\n%s", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode >= 400 {
		return Fail(content), nil
	}
	return Ok(content), nil
}
