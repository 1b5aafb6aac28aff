package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultPage = `
<html><body>
  <div class="result">
    <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fa">First Hit</a>
    <a class="result__snippet">Snippet one.</a>
  </div>
  <div class="result">
    <a class="result__a" href="https://example.org/b">Second Hit</a>
    <a class="result__snippet">Snippet two.</a>
  </div>
  <div class="result">
    <a class="result__a" href="https://example.org/c">Third Hit</a>
  </div>
</body></html>`

func TestSearchParseResults(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resultPage))
	require.NoError(t, err)

	tool := NewSearchTool(2)
	hits := tool.parseResults(doc)
	require.Len(t, hits, 2)
	assert.Equal(t, "First Hit", hits[0].title)
	assert.Equal(t, "https://example.com/a", hits[0].url)
	assert.Equal(t, "Snippet one.", hits[0].snippet)
	assert.Equal(t, "https://example.org/b", hits[1].url)
}

func TestCleanResultURL(t *testing.T) {
	tests := []struct {
		href, want string
	}{
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fx", "https://example.com/x"},
		{"https://example.com/direct", "https://example.com/direct"},
		{"//example.com/schemeless", "https://example.com/schemeless"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanResultURL(tt.href), "href %q", tt.href)
	}
}

func TestExtractText(t *testing.T) {
	page := `
<html><head><title>Doc</title><style>body { color: red }</style></head>
<body>
  <nav><a href="/">Home</a></nav>
  <article>
    <h1>Heading</h1>
    <p>First   paragraph.</p>
    <script>alert("x")</script>
    <p>Second paragraph.</p>
  </article>
  <footer>copyright</footer>
</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	text := ExtractText(doc)
	assert.Equal(t, "Heading\nFirst paragraph.\nSecond paragraph.", text)
}

func TestMemoryToolReadAppend(t *testing.T) {
	path := t.TempDir() + "/memory.md"
	tool := NewMemoryTool(path)
	ctx := context.Background()

	res, err := tool.Execute(ctx, map[string]any{"action": "read"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Memory is empty.", res.Content)

	res, err = tool.Execute(ctx, map[string]any{"action": "append", "note": "prefers metric units"})
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = tool.Execute(ctx, map[string]any{"action": "read"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "prefers metric units")

	res, err = tool.Execute(ctx, map[string]any{"action": "append"})
	require.NoError(t, err)
	assert.False(t, res.Success)
}
