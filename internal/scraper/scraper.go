// Package scraper turns fetched HTML into Markdown and discovers
// outbound links. A page is parsed exactly once; link extraction and
// content scraping both run on the same document.
package scraper

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/msneto/crawler-to-md/internal/urlutil"
)

// ErrNoContent indicates the page converted to empty Markdown. The
// failure is retriable: a later run may see a populated page.
var ErrNoContent = errors.New("no content extracted")

var bareTagRe = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// Scraper converts parsed HTML documents to Markdown, applying the
// configured element filters first.
type Scraper struct {
	includeFilters []string
	excludeFilters []string
	converter      *htmlmd.Converter
}

// New creates a Scraper. Include filters keep only the matched
// elements; exclude filters drop the matched elements. Both accept
// selectors of the form #id, .class, or a bare tag name.
func New(includeFilters, excludeFilters []string) *Scraper {
	return &Scraper{
		includeFilters: includeFilters,
		excludeFilters: excludeFilters,
		converter:      htmlmd.NewConverter("", true, nil),
	}
}

// Parse builds a queryable document from an HTML body.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// LinkOptions controls which extracted links survive filtering.
type LinkOptions struct {
	// Scope anchor; empty disables the host/path scope check
	Base string

	// URL pattern predicate; nil accepts every URL
	ShouldCrawl func(url string) bool
}

// ExtractLinks collects every <a href> of the document, resolves it
// against pageURL, normalizes it, and filters it by scheme, scope,
// and the URL patterns. The result is deduplicated in document order.
func ExtractLinks(doc *goquery.Document, pageURL string, opts LinkOptions) []string {
	var links []string
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}

		resolved, err := urlutil.Resolve(pageURL, href)
		if err != nil {
			return
		}
		normalized, err := urlutil.Normalize(resolved)
		if err != nil {
			return
		}
		if !urlutil.IsSupportedScheme(normalized) {
			return
		}
		if opts.Base != "" && !urlutil.IsInScope(normalized, opts.Base) {
			return
		}
		if opts.ShouldCrawl != nil && !opts.ShouldCrawl(normalized) {
			return
		}
		if seen[normalized] {
			return
		}
		seen[normalized] = true
		links = append(links, normalized)
	})

	return links
}

// Scrape converts the document to Markdown and returns it with the
// page metadata. The document's title is captured before filtering so
// an excluded <head> cannot lose it.
func (s *Scraper) Scrape(doc *goquery.Document) (string, map[string]string, error) {
	title := strings.TrimSpace(doc.Find("title").First().Text())

	working := doc
	if len(s.includeFilters) > 0 {
		narrowed, err := s.narrowToIncluded(doc)
		if err != nil {
			return "", nil, err
		}
		working = narrowed
	}

	for _, selector := range s.excludeFilters {
		if translated := translateSelector(selector); translated != "" {
			working.Find(translated).Remove()
		}
	}

	// Scripts and styles never survive conversion.
	working.Find("script, style").Remove()

	markdown := s.converter.Convert(working.Selection)
	if strings.TrimSpace(markdown) == "" {
		return "", nil, ErrNoContent
	}

	return markdown, map[string]string{"title": title}, nil
}

// narrowToIncluded builds a synthetic document whose body holds a
// copy of every element matched by the include filters, preserving
// filter order.
func (s *Scraper) narrowToIncluded(doc *goquery.Document) (*goquery.Document, error) {
	var b bytes.Buffer
	b.WriteString("<html><head></head><body>")
	for _, selector := range s.includeFilters {
		translated := translateSelector(selector)
		if translated == "" {
			continue
		}
		var renderErr error
		doc.Find(translated).Each(func(_ int, sel *goquery.Selection) {
			for _, node := range sel.Nodes {
				if err := html.Render(&b, node); err != nil && renderErr == nil {
					renderErr = err
				}
			}
		})
		if renderErr != nil {
			return nil, fmt.Errorf("failed to render included elements: %w", renderErr)
		}
	}
	b.WriteString("</body></html>")

	narrowed, err := goquery.NewDocumentFromReader(&b)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild filtered document: %w", err)
	}
	return narrowed, nil
}

// translateSelector maps a configured filter to a goquery selector.
// #id and .class pass through; everything else is treated as a tag
// name with unsafe characters stripped. An empty result means the
// selector matches nothing.
func translateSelector(selector string) string {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return ""
	}
	if strings.HasPrefix(selector, "#") || strings.HasPrefix(selector, ".") {
		return selector
	}
	return bareTagRe.ReplaceAllString(selector, "")
}
