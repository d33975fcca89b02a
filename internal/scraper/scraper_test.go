package scraper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLinks(t *testing.T) {
	doc, err := Parse([]byte(`<html><body>
		<a href="/docs/page1">one</a>
		<a href="page2">two</a>
		<a href="/docs/page1#section">one again</a>
		<a href="https://other.example.org/docs/elsewhere">off host</a>
		<a href="mailto:someone@example.com">mail</a>
		<a href="javascript:void(0)">js</a>
		<a href="#top">fragment only</a>
		<a href="">empty</a>
	</body></html>`))
	require.NoError(t, err)

	links := ExtractLinks(doc, "https://example.com/docs/", LinkOptions{
		Base: "https://example.com/docs",
	})

	assert.Equal(t, []string{
		"https://example.com/docs/page1",
		"https://example.com/docs/page2",
	}, links)
}

func TestExtractLinksScope(t *testing.T) {
	doc, err := Parse([]byte(`<html><body>
		<a href="/docs/in">in</a>
		<a href="/docset">near miss</a>
		<a href="/other">out</a>
	</body></html>`))
	require.NoError(t, err)

	links := ExtractLinks(doc, "https://example.com/docs", LinkOptions{
		Base: "https://example.com/docs",
	})

	assert.Equal(t, []string{"https://example.com/docs/in"}, links)
}

func TestExtractLinksPatternPredicate(t *testing.T) {
	doc, err := Parse([]byte(`<html><body>
		<a href="/keep/a">a</a>
		<a href="/skip/b">b</a>
	</body></html>`))
	require.NoError(t, err)

	links := ExtractLinks(doc, "https://example.com/", LinkOptions{
		ShouldCrawl: func(u string) bool { return !strings.Contains(u, "/skip/") },
	})

	assert.Equal(t, []string{"https://example.com/keep/a"}, links)
}

func TestScrapeBasic(t *testing.T) {
	doc, err := Parse([]byte(`<html><head><title> Test Page </title>
		<style>body { color: red }</style></head>
		<body><h1>Heading</h1><p>Hello</p>
		<script>alert("nope")</script></body></html>`))
	require.NoError(t, err)

	s := New(nil, nil)
	markdown, meta, err := s.Scrape(doc)
	require.NoError(t, err)

	assert.Equal(t, "Test Page", meta["title"])
	assert.Contains(t, markdown, "Hello")
	assert.Contains(t, markdown, "# Heading")
	assert.NotContains(t, markdown, "alert")
	assert.NotContains(t, markdown, "color: red")
}

func TestScrapeIncludeFilters(t *testing.T) {
	doc, err := Parse([]byte(`<html><head><title>Doc</title></head><body>
		<nav>navigation</nav>
		<div id="content"><p>kept by id</p></div>
		<div class="extra"><p>kept by class</p></div>
		<footer>footer text</footer>
	</body></html>`))
	require.NoError(t, err)

	s := New([]string{"#content", ".extra"}, nil)
	markdown, meta, err := s.Scrape(doc)
	require.NoError(t, err)

	assert.Equal(t, "Doc", meta["title"], "title survives include narrowing")
	assert.Contains(t, markdown, "kept by id")
	assert.Contains(t, markdown, "kept by class")
	assert.NotContains(t, markdown, "navigation")
	assert.NotContains(t, markdown, "footer text")
}

func TestScrapeExcludeFilters(t *testing.T) {
	doc, err := Parse([]byte(`<html><body>
		<p>keep me</p>
		<div class="ads">buy stuff</div>
		<aside>sidebar</aside>
	</body></html>`))
	require.NoError(t, err)

	s := New(nil, []string{".ads", "aside"})
	markdown, _, err := s.Scrape(doc)
	require.NoError(t, err)

	assert.Contains(t, markdown, "keep me")
	assert.NotContains(t, markdown, "buy stuff")
	assert.NotContains(t, markdown, "sidebar")
}

func TestScrapeNoContent(t *testing.T) {
	doc, err := Parse([]byte(`<html><body><script>only();</script></body></html>`))
	require.NoError(t, err)

	s := New(nil, nil)
	_, _, err = s.Scrape(doc)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestScrapeMissingTitle(t *testing.T) {
	doc, err := Parse([]byte(`<html><body><p>text</p></body></html>`))
	require.NoError(t, err)

	s := New(nil, nil)
	_, meta, err := s.Scrape(doc)
	require.NoError(t, err)
	assert.Equal(t, "", meta["title"])
}

func TestTranslateSelector(t *testing.T) {
	assert.Equal(t, "#main", translateSelector("#main"))
	assert.Equal(t, ".content", translateSelector(".content"))
	assert.Equal(t, "article", translateSelector("article"))
	assert.Equal(t, "div", translateSelector("div[onclick]"))
	assert.Equal(t, "", translateSelector("   "))
}
